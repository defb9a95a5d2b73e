package cmd

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

var (
	updateKconfigPath string
	updatePoolName    string
	updateNodeNumber  int
	updateWait        bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Enqueue an update operation for a cluster, nodepool, or node",
}

var updateClusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Reconcile every nodepool in a cluster config",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdateEnqueue(cmd, "/k8s/update_cluster", nil)
	},
}

var updateNodepoolCmd = &cobra.Command{
	Use:   "nodepool",
	Short: "Reconcile every node in one nodepool",
	RunE: func(cmd *cobra.Command, args []string) error {
		if updatePoolName == "" {
			return fmt.Errorf("--nodepool is required")
		}
		return runUpdateEnqueue(cmd, "/k8s/update_nodepool", url.Values{"nodepool_name": {updatePoolName}})
	},
}

var updateNodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Reconcile a single node",
	RunE: func(cmd *cobra.Command, args []string) error {
		if updatePoolName == "" {
			return fmt.Errorf("--nodepool is required")
		}
		if updateNodeNumber == 0 {
			return fmt.Errorf("--node is required")
		}
		return runUpdateEnqueue(cmd, "/k8s/update_node", url.Values{
			"nodepool_name": {updatePoolName},
			"node_number":   {formatNodeNumber(updateNodeNumber)},
		})
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.AddCommand(updateClusterCmd, updateNodepoolCmd, updateNodeCmd)

	for _, c := range []*cobra.Command{updateClusterCmd, updateNodepoolCmd, updateNodeCmd} {
		c.Flags().StringVar(&updateKconfigPath, "kconfig", "", "path to the cluster config file (required)")
		c.Flags().BoolVar(&updateWait, "wait", false, "poll task_status until the task reaches a terminal state")
	}
	updateNodepoolCmd.Flags().StringVar(&updatePoolName, "nodepool", "", "nodepool name")
	updateNodeCmd.Flags().StringVar(&updatePoolName, "nodepool", "", "nodepool name")
	updateNodeCmd.Flags().IntVar(&updateNodeNumber, "node", 0, "node number")
}

func runUpdateEnqueue(cmd *cobra.Command, path string, extra url.Values) error {
	if updateKconfigPath == "" {
		return fmt.Errorf("--kconfig is required")
	}
	raw, err := os.ReadFile(updateKconfigPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", updateKconfigPath, err)
	}

	form := url.Values{"kconfig": {string(raw)}}
	for k, v := range extra {
		form[k] = v
	}

	clientID := os.Getenv("KAMATERA_API_CLIENT_ID")
	secret := os.Getenv("KAMATERA_API_SECRET")

	client := newAPIClient()
	taskID, err := client.enqueue(path, form, clientID, secret)
	if err != nil {
		return err
	}
	fmt.Printf("task_id: %s\n", taskID)

	if !updateWait {
		return nil
	}
	return waitForTask(client, taskID, clientID, secret)
}
