package telegram

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"zenith-bot/internal/config"
	"zenith-bot/internal/db"
	"zenith-bot/internal/ledger"
	"zenith-bot/internal/metrics"
	"zenith-bot/internal/session"
)

// maxConcurrentUpdates сколько апдейтов обрабатывается одновременно
const maxConcurrentUpdates = 16

// Deps зависимости обработчиков. Payments и Watcher равны nil, если ЮKassa не настроена.
type Deps struct {
	Ledger    *ledger.Service
	Sessions  session.Store
	Assistant Assistant
	Payments  Payments
	Watcher   PaymentWatcher
}

type Service struct {
	api       *tgbotapi.BotAPI
	bot       Sender
	cfg       *config.Config
	ledger    *ledger.Service
	repo      *db.Repository
	sessions  session.Store
	assistant Assistant
	payments  Payments
	watcher   PaymentWatcher
	botName   string
	now       func() time.Time
	wg        sync.WaitGroup
	log       zerolog.Logger
}

func New(cfg *config.Config, deps Deps, log zerolog.Logger) (*Service, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	api.Debug = false

	service := newService(api, cfg, deps, log)
	service.api = api
	if api.Self.UserName != "" {
		service.botName = api.Self.UserName
	}

	// Удаляем webhook чтобы использовать long-polling
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		service.log.Warn().Err(err).Msg("Не удалось удалить webhook")
	} else {
		service.log.Info().Msg("Webhook удален, переключились на long-polling")
	}

	service.log.Info().Str("username", api.Self.UserName).Msg("Авторизован как телеграм бот")

	// Устанавливаем меню команд
	if err := service.setCommands(); err != nil {
		service.log.Warn().Err(err).Msg("Не удалось установить меню команд")
	}

	return service, nil
}

func newService(bot Sender, cfg *config.Config, deps Deps, log zerolog.Logger) *Service {
	return &Service{
		bot:       bot,
		cfg:       cfg,
		ledger:    deps.Ledger,
		repo:      deps.Ledger.Repo(),
		sessions:  deps.Sessions,
		assistant: deps.Assistant,
		payments:  deps.Payments,
		watcher:   deps.Watcher,
		botName:   cfg.BotUsername,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("component", "telegram").Logger(),
	}
}

// Start читает апдейты до отмены ctx. Апдейты обрабатываются параллельно, не больше maxConcurrentUpdates.
func (s *Service) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := s.api.GetUpdatesChan(u)
	slots := make(chan struct{}, maxConcurrentUpdates)

	defer s.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			s.api.StopReceivingUpdates()
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			slots <- struct{}{}
			s.wg.Add(1)
			go func() {
				defer func() { <-slots; s.wg.Done() }()
				s.handleUpdate(ctx, upd)
			}()
		}
	}
}

// Bot отправитель сообщений для фоновых задач
func (s *Service) Bot() Sender {
	return s.bot
}

func (s *Service) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer s.recoverPanic(ctx, upd)

	if upd.Message != nil {
		metrics.BotUpdatesTotal.WithLabelValues("message").Inc()
		s.handleMessage(ctx, upd.Message)
		return
	}

	if upd.CallbackQuery != nil {
		metrics.BotUpdatesTotal.WithLabelValues("callback").Inc()
		s.handleCallbackQuery(ctx, upd.CallbackQuery)
		return
	}
}

// recoverPanic не дает одному апдейту уронить бота
func (s *Service) recoverPanic(ctx context.Context, upd tgbotapi.Update) {
	r := recover()
	if r == nil {
		return
	}

	var userID, chatID int64
	if from := upd.SentFrom(); from != nil {
		userID = from.ID
	}
	if chat := upd.FromChat(); chat != nil {
		chatID = chat.ID
	}

	metrics.BotErrorsTotal.WithLabelValues(ErrPanic).Inc()
	s.log.Error().Interface("panic", r).Int64("user_id", userID).Msg("handler panic recovered")
	s.reportError(ctx, ErrPanic, fmt.Sprint(r), string(debug.Stack()), userID)

	if chatID != 0 {
		s.reply(chatID, genericErrorMessage)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	_, created, err := s.repo.EnsureUser(ctx, msg.From.ID, msg.From.UserName, fullName(msg.From))
	if err != nil {
		s.handleError(ctx, msg.Chat.ID, msg.From.ID, ErrDatabasef("ensure user %d", msg.From.ID).Wrap(err))
		return
	}

	if msg.IsCommand() {
		s.handleCommand(ctx, msg, created)
		return
	}

	if strings.TrimSpace(msg.Text) == "" {
		s.reply(msg.Chat.ID, "Я понимаю только текстовые сообщения.")
		return
	}

	s.handleText(ctx, msg)
}

func (s *Service) handleCommand(ctx context.Context, msg *tgbotapi.Message, created bool) {
	cmd := Command(msg.Command())

	// Проверяем валидность команды
	if !cmd.IsValid() {
		s.handleUnknown(msg)
		return
	}

	// Проверяем права для админских команд
	if cmd.IsAdminOnly() && !s.isAdmin(ctx, msg.From.ID) {
		s.reply(msg.Chat.ID, "❌ У вас нет прав администратора!")
		return
	}

	// Любая команда прерывает ожидание ввода
	s.clearPending(ctx, msg.From.ID)

	switch cmd {
	case CmdStart:
		s.handleStart(ctx, msg, created)
	case CmdHelp:
		s.handleHelp(ctx, msg)
	case CmdProfile:
		s.showProfile(ctx, msg.Chat.ID, msg.From.ID, 0)
	case CmdMode:
		s.showModes(ctx, msg.Chat.ID, msg.From.ID, 0)
	case CmdDiscount:
		s.handleDiscount(ctx, msg)
	case CmdBuy:
		s.showSubscriptions(ctx, msg.Chat.ID, msg.From.ID, 0)
	case CmdDeposit:
		s.startDeposit(ctx, msg.Chat.ID, msg.From.ID, 0)
	case CmdReferral:
		s.showReferral(ctx, msg.Chat.ID, msg.From.ID, 0)
	case CmdCancel:
		s.reply(msg.Chat.ID, "❌ Операция отменена")
	case CmdAdmin:
		s.showAdminPanel(ctx, msg.Chat.ID, msg.From.ID, 0)
	case CmdUser:
		s.handleUserCommand(ctx, msg)
	case CmdWithdraw:
		s.handleWithdrawCommand(ctx, msg)
	case CmdConsole:
		s.handleConsole(ctx, msg)
	}
}

// handleText свободный текст: продолжение ожидаемого ввода или вопрос модели
func (s *Service) handleText(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	state, err := s.sessions.Get(ctx, userID)
	if err != nil {
		s.handleError(ctx, msg.Chat.ID, userID, err)
		return
	}

	kind := state.Awaiting(s.cfg.SessionTTL, s.now())
	if kind == session.KindNone {
		s.handleChat(ctx, msg, state)
		return
	}

	if session.IsCancel(msg.Text) {
		s.clearPending(ctx, userID)
		s.reply(msg.Chat.ID, "❌ Операция отменена")
		return
	}

	if kind.AdminOnly() && !s.isAdmin(ctx, userID) {
		s.clearPending(ctx, userID)
		s.reply(msg.Chat.ID, "❌ У вас нет прав администратора!")
		return
	}

	if keep := s.handlePendingInput(ctx, msg, state.Pending); !keep {
		s.clearPending(ctx, userID)
	}
}

// handlePendingInput возвращает true, если ввод нужно запросить снова
func (s *Service) handlePendingInput(ctx context.Context, msg *tgbotapi.Message, pending session.Pending) bool {
	switch pending.Kind {
	case session.KindDiscountParams:
		return s.handleDiscountParamsInput(ctx, msg)
	case session.KindDiscountCodeToDelete:
		return s.handleDeleteDiscountInput(ctx, msg)
	case session.KindAdminIDToAdd:
		return s.handleAddAdminIDInput(ctx, msg)
	case session.KindAdminUsernameToAdd:
		return s.handleAddAdminUsernameInput(ctx, msg)
	case session.KindAdminIDToRemove:
		return s.handleRemoveAdminInput(ctx, msg)
	case session.KindWithdrawalAmount:
		return s.handleWithdrawalInput(ctx, msg)
	case session.KindDepositAmount:
		return s.handleDepositInput(ctx, msg)
	}
	return false
}

func (s *Service) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil || callback.From == nil {
		s.answerCallback(callback.ID, "")
		return
	}

	data := CallbackData(callback.Data)
	chatID := callback.Message.Chat.ID
	userID := callback.From.ID
	messageID := callback.Message.MessageID

	if data.IsAdmin() || strings.HasPrefix(callback.Data, CallbackAdminDeactivate.String()) {
		if !s.isAdmin(ctx, userID) {
			s.answerAlert(callback.ID, "❌ У вас нет прав администратора!")
			return
		}
		s.handleAdminCallback(ctx, callback)
		return
	}

	switch data {
	case CallbackBackToMain:
		s.showMainMenu(ctx, chatID, userID, messageID)
	case CallbackProfile:
		s.showProfile(ctx, chatID, userID, messageID)
	case CallbackModes:
		s.showModes(ctx, chatID, userID, messageID)
	case CallbackSubscriptions:
		s.showSubscriptions(ctx, chatID, userID, messageID)
	case CallbackDeposit:
		s.startDeposit(ctx, chatID, userID, messageID)
	case CallbackReferral:
		s.showReferral(ctx, chatID, userID, messageID)
	case CallbackExchangeReferral:
		s.handleExchangeReferral(ctx, callback)
		return
	case CallbackReferralWithdrawal:
		s.startWithdrawal(ctx, callback)
		return
	case CallbackCancelInput:
		s.clearPending(ctx, userID)
		s.showProfile(ctx, chatID, userID, messageID)
	default:
		if mode, ok := CallbackMode.Param(callback.Data); ok {
			s.handleModeSelection(ctx, callback, mode)
			return
		}
		if tier, ok := CallbackSubscribe.Param(callback.Data); ok {
			s.handleSubscriptionPurchase(ctx, callback, tier)
			return
		}
		s.answerCallback(callback.ID, "Неизвестное действие")
		return
	}

	s.answerCallback(callback.ID, "")
}

func (s *Service) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	text := `🤖 Zenith - AI помощник

👤 Команды пользователя:
/start - главное меню
/profile - личный кабинет
/mode - сменить режим работы
/buy - купить подписку
/deposit - пополнить баланс
/discount <код> - применить скидочный код
/referral - реферальная программа
/cancel - отменить ввод
/help - справка

Просто напишите сообщение, чтобы задать вопрос ИИ.`

	if s.isAdmin(ctx, msg.From.ID) {
		text += `

⚡ Администраторские команды:
/admin - панель администратора
/user <ID> info|balance|subscription|discount - управление пользователем
/withdraw <ID> <сумма> <комментарий> - подтвердить вывод средств
/console stats|errors|clear_errors|users count|user <ID> info|broadcast <текст>`
	}

	s.reply(msg.Chat.ID, text)
}

func (s *Service) handleUnknown(msg *tgbotapi.Message) {
	s.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
}

func (s *Service) reply(chatID int64, text string) error {
	return s.replyWithMarkup(chatID, text, nil)
}

func (s *Service) replyWithMarkup(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	_, err := s.bot.Send(msg)
	if err != nil {
		metrics.BotSendErrors.Inc()
		s.log.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
	return err
}

// show редактирует messageID или отправляет новое сообщение и запоминает его как активное меню
func (s *Service) show(ctx context.Context, chatID, userID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if messageID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		edit.ReplyMarkup = markup
		_, err := s.bot.Send(edit)
		if err == nil || isNotModified(err) {
			s.rememberMenu(ctx, userID, messageID)
			return
		}
		s.log.Debug().Err(err).Int64("chat_id", chatID).Msg("edit failed, sending new message")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := s.bot.Send(msg)
	if err != nil {
		metrics.BotSendErrors.Inc()
		s.log.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send menu")
		return
	}
	s.rememberMenu(ctx, userID, sent.MessageID)
}

func (s *Service) rememberMenu(ctx context.Context, userID int64, messageID int) {
	_, err := s.sessions.Update(ctx, userID, func(st *session.State) error {
		st.MenuMessageID = messageID
		st.ChatMode = session.ChatModeMenu
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to save menu message")
	}
}

// isStaleMenu true, если кнопка нажата в старом меню
func (s *Service) isStaleMenu(ctx context.Context, userID int64, messageID int) bool {
	state, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return false
	}
	return state.MenuMessageID != 0 && state.MenuMessageID != messageID
}

func (s *Service) expect(ctx context.Context, userID int64, kind session.Kind, payload map[string]string) error {
	_, err := s.sessions.Update(ctx, userID, func(st *session.State) error {
		st.Expect(kind, payload)
		return nil
	})
	return err
}

func (s *Service) clearPending(ctx context.Context, userID int64) {
	_, err := s.sessions.Update(ctx, userID, func(st *session.State) error {
		st.Reset()
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to clear pending input")
	}
}

func (s *Service) isAdmin(ctx context.Context, userID int64) bool {
	ok, err := s.ledger.IsAdmin(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("admin check failed")
		return false
	}
	return ok
}

func (s *Service) answerCallback(callbackID, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	s.bot.Request(callback)
}

func (s *Service) answerAlert(callbackID, text string) {
	callback := tgbotapi.NewCallbackWithAlert(callbackID, text)
	s.bot.Request(callback)
}

func (s *Service) setCommands() error {
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "🚀 Перезапустить бота"},
		{Command: "profile", Description: "👤 Личный кабинет"},
		{Command: "mode", Description: "🛠 Сменить режим работы"},
		{Command: "buy", Description: "💎 Купить подписку"},
		{Command: "deposit", Description: "💳 Пополнить баланс"},
		{Command: "discount", Description: "🎟 Применить скидочный код"},
		{Command: "referral", Description: "👥 Реферальная программа"},
		{Command: "help", Description: "❓ Справка"},
	}

	if _, err := s.bot.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		return err
	}

	rootID := s.ledger.RootAdminID()
	if rootID == 0 {
		return nil
	}

	adminCommands := append(commands,
		tgbotapi.BotCommand{Command: "admin", Description: "🎛 Панель администратора"},
		tgbotapi.BotCommand{Command: "user", Description: "👥 Управление пользователями"},
		tgbotapi.BotCommand{Command: "console", Description: "🖥 Консоль администратора"},
	)
	_, err := s.bot.Request(tgbotapi.NewSetMyCommandsWithScope(tgbotapi.NewBotCommandScopeChat(rootID), adminCommands...))
	return err
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
