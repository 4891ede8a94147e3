package shutdown

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SlpAus/pushup-tracker-backend/pkg/lifecycle"
)

const (
	httpShutdownTimeout   = 10 * time.Second
	workerShutdownTimeout = 10 * time.Second
)

// Coordinator 负责进程的分阶段退出
// 先停HTTP让在途请求跑完，再通知后台worker收尾
type Coordinator struct {
	server   *http.Server
	managers []*lifecycle.Manager
}

func NewCoordinator(server *http.Server, managers ...*lifecycle.Manager) *Coordinator {
	return &Coordinator{server: server, managers: managers}
}

// Wait 阻塞到收到退出信号，然后按顺序关停
func (c *Coordinator) Wait() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fmt.Println("收到退出信号，开始关停...")

	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := c.server.Shutdown(ctx); err != nil {
		fmt.Println("HTTP服务关停失败:", err)
	}

	for _, m := range c.managers {
		m.Shutdown()
	}
	for _, m := range c.managers {
		if stragglers := m.WaitWithTimeout(workerShutdownTimeout); len(stragglers) > 0 {
			fmt.Println("以下服务未能按时退出:", stragglers)
		}
	}
	fmt.Println("关停完成。")
}
