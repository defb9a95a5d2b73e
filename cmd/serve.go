package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/chalkan3/sloth-kubernetes/internal/audit"
	"github.com/chalkan3/sloth-kubernetes/internal/clusterengine"
	"github.com/chalkan3/sloth-kubernetes/internal/cloudapi"
	"github.com/chalkan3/sloth-kubernetes/internal/common"
	"github.com/chalkan3/sloth-kubernetes/internal/httpapi"
	"github.com/chalkan3/sloth-kubernetes/internal/nodeengine"
	"github.com/chalkan3/sloth-kubernetes/internal/poolengine"
	"github.com/chalkan3/sloth-kubernetes/internal/sshexec"
	"github.com/chalkan3/sloth-kubernetes/internal/tasks"
)

var (
	serveAddr        string
	serveConcurrency int
	serveDev         bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and task worker in one process",
	Long: `serve starts the HTTP façade (POST /k8s/...) and a task runner
that executes cluster, nodepool, and node tasks against the configured
broker. Intended for local development and small deployments; larger
deployments run the API and workers as separate processes sharing the
same Redis broker.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP listen address")
	serveCmd.Flags().IntVar(&serveConcurrency, "concurrency", 4, "number of worker goroutines")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "use an in-memory broker instead of CELERY_BROKER's Redis")
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := common.LoadEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}

	log := slog.Default()

	broker, err := newBroker(env, serveDev)
	if err != nil {
		return err
	}

	cloud := cloudapi.NewClient(env.APIServer)
	ssh := &unconfiguredSSH{}
	recorder := audit.NewClusterRecorder(audit.NewInMemoryLogger(10000), "sloth-serve")

	nodeEng := nodeengine.NewEngine(cloud, ssh, "root")
	nodeEng.Audit = recorder
	poolEng := poolengine.NewEngine(broker)
	poolEng.Audit = recorder
	clusterEng := clusterengine.NewEngine(broker, cloud, ssh)
	clusterEng.Audit = recorder

	runner := tasks.NewRunner(broker, serveConcurrency, log)
	runner.Register(poolengine.NodeCreateTaskName, nodeEng.CreateHandler)
	runner.Register(poolengine.NodeUpdateTaskName, nodeEng.UpdateHandler)
	runner.Register(clusterengine.PoolCreateTaskName, poolEng.CreateHandler)
	runner.Register(clusterengine.PoolUpdateTaskName, poolEng.UpdateHandler)
	runner.Register(clusterengine.CreateTaskName, clusterEng.CreateHandler)
	runner.Register(clusterengine.UpdateTaskName, clusterEng.UpdateHandler)
	runner.Register(clusterengine.StatusTaskName, clusterEng.StatusHandler)
	runner.Register(clusterengine.KubeconfigTaskName, clusterEng.KubeconfigHandler)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go runner.Run(ctx)

	server := httpapi.NewServer(broker)
	httpSrv := &http.Server{Addr: serveAddr, Handler: server.Router()}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http api listening", "addr", serveAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func newBroker(env common.Env, dev bool) (tasks.Broker, error) {
	if dev || env.CeleryBroker == "" {
		return tasks.NewMemoryBroker(256), nil
	}
	opts, err := redis.ParseURL(env.CeleryBroker)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CELERY_BROKER as a Redis URL: %w", err)
	}
	return tasks.NewRedisBroker(redis.NewClient(opts)), nil
}

// unconfiguredSSH is the Engine-level placeholder sshexec.Executor: the
// real per-task executor is always built from that task's own cluster
// config by Engine.SSHFactory (nodeengine.Engine.scopedTo,
// clusterengine.Engine.scopedTo), so this value is never actually
// invoked in the serve command.
type unconfiguredSSH struct{}

func (unconfiguredSSH) RunScript(ctx context.Context, host, script string) (string, string, error) {
	return "", "", fmt.Errorf("ssh executor not scoped to a task: this is a bug if reached")
}

var _ sshexec.Executor = unconfiguredSSH{}
