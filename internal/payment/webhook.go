package payment

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog"

	"zenith-bot/internal/domain"
)

// Сети, с которых ЮKassa отправляет уведомления.
var YooKassaNetworks = []string{
	"185.71.76.0/27",
	"185.71.77.0/27",
	"77.75.153.0/25",
	"77.75.156.11/32",
	"77.75.156.35/32",
	"77.75.156.224/28",
	"77.75.154.128/25",
	"2a02:5180::/32",
}

type WebhookHandler struct {
	checker  checker
	allowed  []*net.IPNet
	trustAny bool
	log      zerolog.Logger
}

func NewWebhookHandler(checker checker, trustAnyIP bool, log zerolog.Logger) *WebhookHandler {
	h := &WebhookHandler{
		checker:  checker,
		trustAny: trustAnyIP,
		log:      log.With().Str("component", "payment_webhook").Logger(),
	}
	for _, cidr := range YooKassaNetworks {
		_, network, err := net.ParseCIDR(cidr)
		if err == nil {
			h.allowed = append(h.allowed, network)
		}
	}
	return h
}

func (h *WebhookHandler) allowedIP(remoteAddr string) bool {
	if h.trustAny {
		return true
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range h.allowed {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ServeHTTP принимает уведомление, но статус всегда перепроверяет у провайдера.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.allowedIP(r.RemoteAddr) {
		h.log.Warn().Str("remote_addr", r.RemoteAddr).Msg("webhook from untrusted address")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var notification WebhookNotification
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&notification); err != nil {
		h.log.Warn().Err(err).Msg("failed to decode webhook")
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if notification.Event != EventPaymentSucceeded && notification.Event != EventPaymentCanceled {
		h.log.Debug().Str("event", notification.Event).Msg("ignored event")
		w.WriteHeader(http.StatusOK)
		return
	}
	if notification.Object.ID == "" {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	outcome, err := h.checker.Check(r.Context(), notification.Object.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// чужой или уже удаленный платеж, повтор не поможет
		h.log.Warn().Str("payment_id", notification.Object.ID).Msg("webhook for unknown payment")
	case err != nil:
		h.log.Error().Err(err).Str("payment_id", notification.Object.ID).Msg("failed to process webhook")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	default:
		h.log.Info().Str("payment_id", notification.Object.ID).Str("event", notification.Event).Str("outcome", outcome.String()).Msg("webhook processed")
	}
	w.WriteHeader(http.StatusOK)
}
