package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"zenith-bot/internal/config"
	"zenith-bot/internal/db"
	"zenith-bot/internal/domain"
	"zenith-bot/internal/ledger"
	"zenith-bot/internal/llm"
	"zenith-bot/internal/payment"
	"zenith-bot/internal/session"
)

const testRootID int64 = 1

type fakeSender struct {
	mu       sync.Mutex
	nextID   int
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// texts тексты отправленных и отредактированных сообщений для chatID
func (f *fakeSender) texts(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			if m.ChatID == chatID {
				out = append(out, m.Text)
			}
		case tgbotapi.EditMessageTextConfig:
			if m.ChatID == chatID {
				out = append(out, m.Text)
			}
		}
	}
	return out
}

func (f *fakeSender) lastText(chatID int64) string {
	texts := f.texts(chatID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (f *fakeSender) alerts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok && cb.ShowAlert {
			out = append(out, cb.Text)
		}
	}
	return out
}

type fakeAssistant struct {
	calls  int
	mode   string
	answer string
	err    error
	panics bool
}

func (a *fakeAssistant) Reply(_ context.Context, _ int64, mode, _ string) (string, error) {
	if a.panics {
		panic("assistant exploded")
	}
	a.calls++
	a.mode = mode
	return a.answer, a.err
}

type fakePayments struct {
	deposits []int
	attached map[string]int
}

func (p *fakePayments) Deposit(_ context.Context, _, _ int64, amount int) (*payment.Deposit, error) {
	if amount < 100 || amount > 15000 {
		return nil, domain.ErrInvalidAmount
	}
	p.deposits = append(p.deposits, amount)
	id := fmt.Sprintf("prov-%d", len(p.deposits))
	return &payment.Deposit{PaymentID: id, ProviderID: id, Amount: amount, ConfirmationURL: "https://pay.example/" + id}, nil
}

func (p *fakePayments) AttachMessage(_ context.Context, providerID string, messageID int) error {
	if p.attached == nil {
		p.attached = make(map[string]int)
	}
	p.attached[providerID] = messageID
	return nil
}

func (p *fakePayments) Limits() payment.Limits {
	return payment.Limits{Min: 100, Max: 15000}
}

type fakeWatcher struct {
	watched []string
}

func (w *fakeWatcher) Watch(_ context.Context, providerID string) {
	w.watched = append(w.watched, providerID)
}

type testEnv struct {
	svc       *Service
	repo      *db.Repository
	sender    *fakeSender
	assistant *fakeAssistant
	payments  *fakePayments
	watcher   *fakeWatcher
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()

	repo, err := db.NewRepository(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	cfg := &config.Config{
		BotUsername: "zenith_test_bot",
		RootAdminID: testRootID,
		SessionTTL:  time.Minute,
	}

	env := &testEnv{
		repo:      repo,
		sender:    &fakeSender{},
		assistant: &fakeAssistant{answer: "ответ модели"},
		payments:  &fakePayments{},
		watcher:   &fakeWatcher{},
	}
	env.svc = newService(env.sender, cfg, Deps{
		Ledger:    ledger.New(repo, ledger.Config{RootAdminID: testRootID, MinWithdrawal: 10}, zerolog.Nop()),
		Sessions:  session.NewMemoryStore(time.Minute),
		Assistant: env.assistant,
		Payments:  env.payments,
		Watcher:   env.watcher,
	}, zerolog.Nop())

	mustUser(t, repo, testRootID, "root")
	return env
}

func mustUser(t *testing.T, repo *db.Repository, id int64, username string) {
	t.Helper()
	if _, _, err := repo.EnsureUser(context.Background(), id, username, username); err != nil {
		t.Fatalf("EnsureUser(%d): %v", id, err)
	}
}

func textMessage(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 100,
		From:      &tgbotapi.User{ID: from, UserName: fmt.Sprintf("user%d", from), FirstName: "Test"},
		Chat:      &tgbotapi.Chat{ID: from},
		Text:      text,
	}
}

func commandMessage(from int64, text string) *tgbotapi.Message {
	msg := textMessage(from, text)
	name := strings.Fields(text)[0]
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}}
	return msg
}

func callbackQuery(from int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: from}},
		Data:    data,
	}
}

func pendingKind(t *testing.T, env *testEnv, userID int64) session.Kind {
	t.Helper()
	state, err := env.svc.sessions.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("sessions.Get: %v", err)
	}
	return state.Awaiting(time.Minute, time.Now().UTC())
}

func TestCommandValidity(t *testing.T) {
	tests := []struct {
		cmd       Command
		valid     bool
		adminOnly bool
	}{
		{CmdStart, true, false},
		{CmdBuy, true, false},
		{CmdReferral, true, false},
		{CmdAdmin, true, true},
		{CmdUser, true, true},
		{CmdWithdraw, true, true},
		{CmdConsole, true, true},
		{Command("nope"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.String(), func(t *testing.T) {
			if got := tt.cmd.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
			if got := tt.cmd.IsAdminOnly(); got != tt.adminOnly {
				t.Errorf("IsAdminOnly() = %v, want %v", got, tt.adminOnly)
			}
		})
	}
}

func TestCallbackPrefixParam(t *testing.T) {
	data := CallbackSubscribe.WithID(domain.TierNova)
	tier, ok := CallbackSubscribe.Param(data)
	if !ok || tier != "tier2" {
		t.Fatalf("Param(%q) = %q, %v", data, tier, ok)
	}
	if _, ok := CallbackMode.Param(data); ok {
		t.Fatalf("mode prefix must not match %q", data)
	}
}

func TestParseReferral(t *testing.T) {
	tests := []struct {
		arg    string
		want   int64
		wantOK bool
	}{
		{"ref42", 42, true},
		{" ref7 ", 7, true},
		{"ref", 0, false},
		{"ref-3", 0, false},
		{"refabc", 0, false},
		{"42", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, ok := parseReferral(tt.arg)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parseReferral(%q) = %d, %v; want %d, %v", tt.arg, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestStartRegistersReferralOnFirstContact(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 10, "inviter")
	mustUser(t, env.repo, 12, "oldtimer")

	env.svc.handleMessage(ctx, commandMessage(11, "/start ref10"))
	env.svc.handleMessage(ctx, commandMessage(12, "/start ref10"))

	referrer, ok, err := env.repo.ReferrerOf(ctx, 11)
	if err != nil || !ok || referrer != 10 {
		t.Fatalf("ReferrerOf(11) = %d, %v, %v; want 10", referrer, ok, err)
	}
	if _, ok, _ := env.repo.ReferrerOf(ctx, 12); ok {
		t.Fatal("existing user must not get a referrer from /start")
	}

	notices := 0
	for _, text := range env.sender.texts(10) {
		if strings.Contains(text, "зарегистрировался новый пользователь") {
			notices++
		}
	}
	if notices != 1 {
		t.Fatalf("referrer notices = %d, want 1", notices)
	}
	if !strings.Contains(env.sender.lastText(11), "Zenith") {
		t.Fatalf("main menu not shown: %q", env.sender.lastText(11))
	}
}

func TestStartIgnoresSelfReferral(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	env.svc.handleMessage(ctx, commandMessage(20, "/start ref20"))

	if _, ok, _ := env.repo.ReferrerOf(ctx, 20); ok {
		t.Fatal("self referral must be ignored")
	}
}

func TestIsAdmin(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 30, "granted")
	if _, err := env.svc.ledger.AddAdmin(ctx, 30, testRootID); err != nil {
		t.Fatalf("AddAdmin: %v", err)
	}

	tests := []struct {
		name     string
		userID   int64
		expected bool
	}{
		{"Root admin from config", testRootID, true},
		{"Granted admin", 30, true},
		{"Regular user", 31, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := env.svc.isAdmin(ctx, tt.userID); got != tt.expected {
				t.Errorf("isAdmin(%d) = %v, want %v", tt.userID, got, tt.expected)
			}
		})
	}
}

func TestAdminCommandRejectedForRegularUser(t *testing.T) {
	env := setupTestService(t)

	env.svc.handleMessage(context.Background(), commandMessage(40, "/console stats"))

	if got := env.sender.lastText(40); !strings.Contains(got, "нет прав администратора") {
		t.Fatalf("reply = %q", got)
	}
}

func TestCreateDiscountThroughPendingInput(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	env.svc.handleCallbackQuery(ctx, callbackQuery(testRootID, CallbackAdminCreateDiscount.String()))
	if kind := pendingKind(t, env, testRootID); kind != session.KindDiscountParams {
		t.Fatalf("pending = %q, want %q", kind, session.KindDiscountParams)
	}

	// неверный формат оставляет ожидание
	env.svc.handleMessage(ctx, textMessage(testRootID, "SUMMER 25"))
	if kind := pendingKind(t, env, testRootID); kind != session.KindDiscountParams {
		t.Fatalf("pending after bad input = %q", kind)
	}

	env.svc.handleMessage(ctx, textMessage(testRootID, "summer 25 100"))
	if kind := pendingKind(t, env, testRootID); kind != session.KindNone {
		t.Fatalf("pending after success = %q", kind)
	}

	dc, err := env.repo.GetDiscountCode(ctx, "SUMMER")
	if err != nil {
		t.Fatalf("GetDiscountCode: %v", err)
	}
	if dc.DiscountPercent != 25 || dc.MaxUses != 100 || !dc.IsActive {
		t.Fatalf("unexpected code %+v", dc)
	}
}

func TestAdminCallbackRejectedForRegularUser(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 41, "plain")

	env.svc.handleCallbackQuery(ctx, callbackQuery(41, CallbackAdminCreateDiscount.String()))

	if kind := pendingKind(t, env, 41); kind != session.KindNone {
		t.Fatalf("pending = %q, want none", kind)
	}
	alerts := env.sender.alerts()
	if len(alerts) != 1 || !strings.Contains(alerts[0], "нет прав") {
		t.Fatalf("alerts = %v", alerts)
	}
}

func TestPendingAdminInputRegatedAfterRevoke(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 42, "temp")
	if _, err := env.svc.ledger.AddAdmin(ctx, 42, testRootID); err != nil {
		t.Fatalf("AddAdmin: %v", err)
	}

	env.svc.handleCallbackQuery(ctx, callbackQuery(42, CallbackAdminAddID.String()))
	if _, err := env.svc.ledger.RemoveAdmin(ctx, 42); err != nil {
		t.Fatalf("RemoveAdmin: %v", err)
	}
	env.svc.handleMessage(ctx, textMessage(42, "42"))

	if ok, _ := env.repo.IsAdminGrant(ctx, 42); ok {
		t.Fatal("revoked admin must not be able to finish admin input")
	}
	if kind := pendingKind(t, env, 42); kind != session.KindNone {
		t.Fatalf("pending = %q, want none", kind)
	}
}

func TestRemoveRootAdminRefused(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	env.svc.handleCallbackQuery(ctx, callbackQuery(testRootID, CallbackAdminRemove.String()))
	env.svc.handleMessage(ctx, textMessage(testRootID, fmt.Sprint(testRootID)))

	if got := env.sender.lastText(testRootID); !strings.Contains(got, "ROOT") {
		t.Fatalf("reply = %q", got)
	}
	if !env.svc.isAdmin(ctx, testRootID) {
		t.Fatal("root must stay admin")
	}
}

func TestCancelClearsPendingInput(t *testing.T) {
	tests := []struct {
		name string
		msg  func(int64) *tgbotapi.Message
	}{
		{"cancel word", func(id int64) *tgbotapi.Message { return textMessage(id, "Отмена") }},
		{"cancel command", func(id int64) *tgbotapi.Message { return commandMessage(id, "/cancel") }},
		{"other command", func(id int64) *tgbotapi.Message { return commandMessage(id, "/profile") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestService(t)
			ctx := context.Background()
			mustUser(t, env.repo, 50, "saver")

			if err := env.svc.expect(ctx, 50, session.KindDepositAmount, nil); err != nil {
				t.Fatalf("expect: %v", err)
			}
			env.svc.handleMessage(ctx, tt.msg(50))

			if kind := pendingKind(t, env, 50); kind != session.KindNone {
				t.Fatalf("pending = %q, want none", kind)
			}
			if len(env.payments.deposits) != 0 {
				t.Fatalf("deposit must not be created: %v", env.payments.deposits)
			}
		})
	}
}

func TestDepositInput(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 60, "payer")

	env.svc.handleCallbackQuery(ctx, callbackQuery(60, CallbackDeposit.String()))
	if kind := pendingKind(t, env, 60); kind != session.KindDepositAmount {
		t.Fatalf("pending = %q", kind)
	}

	env.svc.handleMessage(ctx, textMessage(60, "50"))
	if kind := pendingKind(t, env, 60); kind != session.KindDepositAmount {
		t.Fatalf("amount below minimum must keep waiting, got %q", kind)
	}

	env.svc.handleMessage(ctx, textMessage(60, "500"))
	if kind := pendingKind(t, env, 60); kind != session.KindNone {
		t.Fatalf("pending after deposit = %q", kind)
	}
	if len(env.payments.deposits) != 1 || env.payments.deposits[0] != 500 {
		t.Fatalf("deposits = %v", env.payments.deposits)
	}
	if env.payments.attached["prov-1"] == 0 {
		t.Fatal("payment message was not attached")
	}
	if len(env.watcher.watched) != 1 || env.watcher.watched[0] != "prov-1" {
		t.Fatalf("watched = %v", env.watcher.watched)
	}
}

func TestDepositUnavailableWithoutPayments(t *testing.T) {
	env := setupTestService(t)
	env.svc.payments = nil
	ctx := context.Background()
	mustUser(t, env.repo, 61, "nopay")

	env.svc.handleMessage(ctx, commandMessage(61, "/deposit"))

	if kind := pendingKind(t, env, 61); kind != session.KindNone {
		t.Fatalf("pending = %q", kind)
	}
	if got := env.sender.lastText(61); !strings.Contains(got, "недоступно") {
		t.Fatalf("reply = %q", got)
	}
}

func TestChatQuotaExceeded(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 70, "chatty")

	// 11 слов стоят 22 токена при лимите бесплатного тарифа 20
	env.svc.handleMessage(ctx, textMessage(70, "раз два три четыре пять шесть семь восемь девять десять одиннадцать"))

	if env.assistant.calls != 0 {
		t.Fatalf("assistant called %d times", env.assistant.calls)
	}
	if got := env.sender.lastText(70); got != quotaExceededText {
		t.Fatalf("reply = %q", got)
	}
	user, err := env.repo.GetUser(ctx, 70)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.TokensUsedToday != 0 {
		t.Fatalf("tokens used = %d, want 0", user.TokensUsedToday)
	}
}

func TestChatReply(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 71, "asker")

	env.svc.handleMessage(ctx, textMessage(71, "привет"))

	if env.assistant.calls != 1 || env.assistant.mode != db.DefaultMode {
		t.Fatalf("assistant calls = %d, mode = %q", env.assistant.calls, env.assistant.mode)
	}
	if got := env.sender.lastText(71); got != "ответ модели" {
		t.Fatalf("reply = %q", got)
	}
	state, _ := env.svc.sessions.Get(ctx, 71)
	if state.ChatMode != session.ChatModeDialog {
		t.Fatalf("chat mode = %q", state.ChatMode)
	}
	user, _ := env.repo.GetUser(ctx, 71)
	if user.TokensUsedToday != domain.TokenCost("привет") {
		t.Fatalf("tokens used = %d", user.TokensUsedToday)
	}
}

func TestChatAPIErrorShownToUser(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 72, "unlucky")
	env.assistant.err = &llm.APIError{StatusCode: 429, Message: "rate limited"}

	env.svc.handleMessage(ctx, textMessage(72, "вопрос"))

	if got := env.sender.lastText(72); got != "❌ Ошибка модели: rate limited" {
		t.Fatalf("reply = %q", got)
	}
	if errs, _ := env.repo.RecentErrors(ctx, 10); len(errs) != 0 {
		t.Fatalf("model errors must not be logged, got %d", len(errs))
	}
}

func TestPanicRecovered(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 73, "boom")
	env.assistant.panics = true

	env.svc.handleUpdate(ctx, tgbotapi.Update{Message: textMessage(73, "привет")})

	if got := env.sender.lastText(73); got != genericErrorMessage {
		t.Fatalf("reply = %q", got)
	}
	errs, err := env.repo.RecentErrors(ctx, 10)
	if err != nil {
		t.Fatalf("RecentErrors: %v", err)
	}
	if len(errs) != 1 || errs[0].ErrorType != ErrPanic || errs[0].Traceback == "" {
		t.Fatalf("error log = %+v", errs)
	}
	if !strings.Contains(env.sender.lastText(testRootID), "Код: PANIC") {
		t.Fatalf("root report = %q", env.sender.lastText(testRootID))
	}
}

func TestSubscriptionPurchase(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 80, "inviter")
	mustUser(t, env.repo, 81, "buyer")
	if _, err := env.svc.ledger.RegisterReferral(ctx, 81, 80); err != nil {
		t.Fatalf("RegisterReferral: %v", err)
	}
	if err := env.repo.AddBalance(ctx, 81, 1000); err != nil {
		t.Fatalf("AddBalance: %v", err)
	}

	env.svc.handleCallbackQuery(ctx, callbackQuery(81, CallbackSubscribe.WithID(domain.TierPulse)))

	buyer, _ := env.repo.GetUser(ctx, 81)
	if buyer.Balance != 700 || buyer.SubscriptionType != domain.TierPulse.String() {
		t.Fatalf("buyer = balance %d, tier %s", buyer.Balance, buyer.SubscriptionType)
	}
	inviter, _ := env.repo.GetUser(ctx, 80)
	if inviter.ReferralBalance != 45 {
		t.Fatalf("referral balance = %d, want 45", inviter.ReferralBalance)
	}
	if !strings.Contains(env.sender.lastText(80), "+45 руб.") {
		t.Fatalf("inviter notice = %q", env.sender.lastText(80))
	}
}

func TestSubscriptionPurchaseInsufficientFunds(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 82, "broke")

	env.svc.handleCallbackQuery(ctx, callbackQuery(82, CallbackSubscribe.WithID(domain.TierEclipse)))

	alerts := env.sender.alerts()
	if len(alerts) != 1 || !strings.Contains(alerts[0], "Стоимость: 700 руб.") {
		t.Fatalf("alerts = %v", alerts)
	}
	user, _ := env.repo.GetUser(ctx, 82)
	if user.SubscriptionType != domain.TierFree.String() {
		t.Fatalf("tier = %s", user.SubscriptionType)
	}
}

func TestUserCommandBalance(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 90, "target")

	env.svc.handleMessage(ctx, commandMessage(testRootID, "/user 90 balance +150"))
	env.svc.handleMessage(ctx, commandMessage(testRootID, "/user 90 balance -500"))

	user, _ := env.repo.GetUser(ctx, 90)
	if user.Balance != 150 {
		t.Fatalf("balance = %d, want 150", user.Balance)
	}
	if got := env.sender.lastText(testRootID); !strings.Contains(got, "не может стать отрицательным") {
		t.Fatalf("reply = %q", got)
	}
}

func TestWithdrawCommandNotifiesUser(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 91, "earner")

	env.svc.handleMessage(ctx, commandMessage(testRootID, "/withdraw 91 250 Перевод на карту"))

	got := env.sender.lastText(91)
	if !strings.Contains(got, "250 руб. обработана") || !strings.Contains(got, "Комментарий: Перевод на карту") {
		t.Fatalf("user notice = %q", got)
	}
}

func TestConsoleBroadcast(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	mustUser(t, env.repo, 100, "a")
	mustUser(t, env.repo, 101, "b")

	env.svc.handleMessage(ctx, commandMessage(testRootID, "/console broadcast Новая версия  уже доступна"))

	for _, id := range []int64{100, 101} {
		if got := env.sender.lastText(id); got != "Новая версия  уже доступна" {
			t.Fatalf("user %d got %q", id, got)
		}
	}
	// root тоже пользователь и получает рассылку
	if got := env.sender.lastText(testRootID); !strings.Contains(got, "✅ Отправлено: 3") {
		t.Fatalf("summary = %q", got)
	}
}

func TestConsoleErrors(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	userID := int64(5)
	if err := env.repo.LogError(ctx, &db.ErrorLog{ErrorType: ErrUnknown, ErrorMessage: "disk full", UserID: &userID}); err != nil {
		t.Fatalf("LogError: %v", err)
	}

	env.svc.handleMessage(ctx, commandMessage(testRootID, "/console errors"))
	if got := env.sender.lastText(testRootID); !strings.Contains(got, "disk full") {
		t.Fatalf("errors = %q", got)
	}

	env.svc.handleMessage(ctx, commandMessage(testRootID, "/console clear_errors"))
	if errs, _ := env.repo.RecentErrors(ctx, 10); len(errs) != 0 {
		t.Fatalf("errors left: %d", len(errs))
	}
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantCode     string
		wantExpected bool
		wantContains string
	}{
		{"insufficient funds", fmt.Errorf("debit: %w", domain.ErrInsufficientFunds), ErrInvalidInput, true, "Недостаточно средств"},
		{"quota", domain.ErrQuotaExceeded, ErrSubscriptionError, true, "лимит токенов"},
		{"root admin", domain.ErrRootAdmin, ErrPermissionDenied, true, "ROOT"},
		{"llm api", ErrLLMf("reply").Wrap(&llm.APIError{StatusCode: 500, Message: "boom"}), ErrLLMError, true, "Ошибка модели: boom"},
		{"database", ErrDatabasef("query").Wrap(errors.New("locked")), ErrDatabaseError, false, "Ошибка базы данных"},
		{"not found", domain.ErrNotFound, ErrUserNotFound, true, "Не найдено"},
		{"unknown", errors.New("strange"), ErrUnknown, false, "Администраторы уведомлены"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg, expected := describeError(tt.err)
			if code != tt.wantCode || expected != tt.wantExpected {
				t.Errorf("describeError() = %s, %v; want %s, %v", code, expected, tt.wantCode, tt.wantExpected)
			}
			if !strings.Contains(msg, tt.wantContains) {
				t.Errorf("message %q does not contain %q", msg, tt.wantContains)
			}
		})
	}
}

func TestBotErrorWrap(t *testing.T) {
	cause := domain.ErrDiscountExhausted
	err := ErrPaymentf("deposit %d", 7).Wrap(cause)

	if !errors.Is(err, cause) {
		t.Fatal("errors.Is must see wrapped cause")
	}
	if err.Details != "deposit 7" {
		t.Errorf("Details = %q", err.Details)
	}
	if !strings.HasPrefix(err.Error(), "[PAYMENT_ERROR]") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name     string
		err      *BotError
		wantCode string
	}{
		{"ErrInvalidInputf", ErrInvalidInputf("test details %s", "arg"), ErrInvalidInput},
		{"ErrDatabasef", ErrDatabasef("db error"), ErrDatabaseError},
		{"ErrPermission", ErrPermission("no permission"), ErrPermissionDenied},
		{"ErrUserNotFoundf", ErrUserNotFoundf("user %d", 1), ErrUserNotFound},
		{"ErrSubscriptionf", ErrSubscriptionf("tier"), ErrSubscriptionError},
		{"ErrLLMf", ErrLLMf("model"), ErrLLMError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, tt.err.Code)
			}
			if tt.err.UserMessage == "" {
				t.Error("UserMessage should not be empty")
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("привет", 10); got != "привет" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("привет мир", 6); got != "привет..." {
		t.Errorf("truncate long = %q", got)
	}
}

func TestSplitMessage(t *testing.T) {
	long := strings.Repeat("а", 6) + "\n" + strings.Repeat("б", 6)

	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"empty", "   ", 10, nil},
		{"fits", "короткий", 10, []string{"короткий"}},
		{"newline split", long, 10, []string{strings.Repeat("а", 6), strings.Repeat("б", 6)}},
		{"hard split", strings.Repeat("в", 12), 5, []string{"ввввв", "ввввв", "вв"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitMessage(tt.text, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("splitMessage() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("part %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

