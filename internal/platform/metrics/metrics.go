package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 双写契约要求台账写入失败是可观测的，而不是被悄悄吞掉的异常
// 这里集中声明所有计数器，各模块通过导出变量直接累加

var (
	// LedgerWriteFailures 统计recordIncrement中被吞掉的台账插入失败次数
	// 该计数器不为零说明approaches表正在落后于daily_counts
	LedgerWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pushups",
		Name:      "ledger_write_failures_total",
		Help:      "Best-effort approach ledger inserts that failed and were swallowed.",
	})

	// NotificationFailures 统计尽力而为的群通知发送失败次数
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pushups",
		Name:      "notification_failures_total",
		Help:      "Best-effort Telegram notifications that failed to send.",
	})

	// NotificationsDropped 统计因队列已满而被丢弃的通知数量
	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pushups",
		Name:      "notifications_dropped_total",
		Help:      "Notifications dropped because the outbound queue was full.",
	})
)
