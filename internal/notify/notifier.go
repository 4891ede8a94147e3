package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/SlpAus/pushup-tracker-backend/internal/platform/metrics"
	"github.com/SlpAus/pushup-tracker-backend/pkg/lifecycle"
)

// Notifier 向群聊推送庆祝消息
// 发送是尽力而为的，失败不影响主流程
type Notifier interface {
	Celebrate(chatID int64, text string)
}

// Noop 关闭推送时使用
type Noop struct{}

func (Noop) Celebrate(chatID int64, text string) {}

type message struct {
	chatID int64
	text   string
}

// Telegram 用独立的worker协程串行发送，带缓冲队列
// 队列满时丢弃消息并计数，不阻塞请求路径
type Telegram struct {
	bot   *tgbotapi.BotAPI
	queue chan message
}

// NewTelegram 创建发送worker，handle控制其生命周期
func NewTelegram(botToken string, handle *lifecycle.Handle) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("无法初始化bot: %w", err)
	}
	t := &Telegram{
		bot:   bot,
		queue: make(chan message, 256),
	}
	go t.run(handle)
	return t, nil
}

func (t *Telegram) Celebrate(chatID int64, text string) {
	select {
	case t.queue <- message{chatID: chatID, text: text}:
	default:
		metrics.NotificationsDropped.Inc()
	}
}

func (t *Telegram) run(handle *lifecycle.Handle) {
	defer handle.Close()
	for {
		select {
		case <-handle.Ctx().Done():
			return
		case msg := <-t.queue:
			if _, err := t.bot.Send(tgbotapi.NewMessage(msg.chatID, msg.text)); err != nil {
				fmt.Println("推送发送失败:", err)
				metrics.NotificationFailures.Inc()
			}
		}
	}
}
