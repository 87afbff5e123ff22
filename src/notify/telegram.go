package notify

import (
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier delivers alerts to one chat. Send failures are logged
// and swallowed: alerting must never break the trading path.
type TelegramNotifier struct {
	chatID string
	http   *resty.Client
	now    func() time.Time
}

func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	httpClient := resty.New().
		SetBaseURL(telegramAPIBase + "/bot" + botToken).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &TelegramNotifier{
		chatID: chatID,
		http:   httpClient,
		now:    time.Now,
	}
}

func (n *TelegramNotifier) send(text string) {
	resp, err := n.http.R().
		SetFormData(map[string]string{
			"chat_id": n.chatID,
			"text":    text,
		}).
		Post("/sendMessage")

	if err != nil {
		logger.WithError(err).WithField("component", "notify").Error("Telegram send failed")
		return
	}
	if resp.StatusCode() != 200 {
		logger.WithFields(map[string]interface{}{
			"component": "notify",
			"status":    resp.StatusCode(),
		}).Error("Telegram send rejected")
	}
}

func (n *TelegramNotifier) SendSystemAlert(event, traceID string, kv map[string]string) {
	n.send("🚨 " + FormatAlert(event, traceID, kv, n.now()))
}

func (n *TelegramNotifier) SendTradeAlert(event, traceID string, kv map[string]string) {
	n.send("📈 " + FormatAlert(event, traceID, kv, n.now()))
}
