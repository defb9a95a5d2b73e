package cmd

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

var (
	kubeconfigKconfigPath string
	kubeconfigTaskID      string
	kubeconfigOutPath     string
)

var kubeconfigCmd = &cobra.Command{
	Use:   "kubeconfig",
	Short: "Enqueue a kubeconfig retrieval, or fetch a completed one",
	RunE:  runKubeconfig,
}

func init() {
	rootCmd.AddCommand(kubeconfigCmd)
	kubeconfigCmd.Flags().StringVar(&kubeconfigKconfigPath, "kconfig", "", "path to the cluster config file")
	kubeconfigCmd.Flags().StringVar(&kubeconfigTaskID, "task-id", "", "check an already-enqueued task instead of creating one")
	kubeconfigCmd.Flags().StringVar(&kubeconfigOutPath, "output", "", "write the kubeconfig to this path instead of stdout")
}

func runKubeconfig(cmd *cobra.Command, args []string) error {
	clientID := os.Getenv("KAMATERA_API_CLIENT_ID")
	secret := os.Getenv("KAMATERA_API_SECRET")
	client := newAPIClient()

	if kubeconfigTaskID != "" {
		status, err := client.taskStatus(kubeconfigTaskID, clientID, secret)
		if err != nil {
			return err
		}
		if state, _ := status["state"].(string); state != "SUCCESS" {
			return fmt.Errorf("task %s is %v, not ready yet", kubeconfigTaskID, status["state"])
		}
		kubeconfig, ok := status["result"].(string)
		if !ok {
			return fmt.Errorf("task %s result was not a kubeconfig string", kubeconfigTaskID)
		}
		return writeKubeconfig(kubeconfig)
	}

	if kubeconfigKconfigPath == "" {
		return fmt.Errorf("one of --kconfig or --task-id is required")
	}
	raw, err := os.ReadFile(kubeconfigKconfigPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", kubeconfigKconfigPath, err)
	}

	taskID, err := client.enqueue("/k8s/kubeconfig", url.Values{"kconfig": {string(raw)}}, clientID, secret)
	if err != nil {
		return err
	}
	fmt.Printf("task_id: %s\n", taskID)
	fmt.Println("re-run with --task-id to fetch the kubeconfig once it's ready")
	return nil
}

func writeKubeconfig(kubeconfig string) error {
	if kubeconfigOutPath == "" {
		fmt.Print(kubeconfig)
		return nil
	}
	return os.WriteFile(kubeconfigOutPath, []byte(kubeconfig), 0600)
}
