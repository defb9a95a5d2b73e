package cmd

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	createKconfigPath string
	createPoolName    string
	createNodeNumber  int
	createWait        bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Enqueue a create operation for a cluster, nodepool, or node",
}

var createClusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Create every nodepool in a cluster config",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnqueue(cmd, "/k8s/create_cluster", nil)
	},
}

var createNodepoolCmd = &cobra.Command{
	Use:   "nodepool",
	Short: "Create every node in one nodepool",
	RunE: func(cmd *cobra.Command, args []string) error {
		if createPoolName == "" {
			return fmt.Errorf("--nodepool is required")
		}
		return runEnqueue(cmd, "/k8s/create_nodepool", url.Values{"nodepool_name": {createPoolName}})
	},
}

var createNodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Create a single node",
	RunE: func(cmd *cobra.Command, args []string) error {
		if createPoolName == "" {
			return fmt.Errorf("--nodepool is required")
		}
		if createNodeNumber == 0 {
			return fmt.Errorf("--node is required")
		}
		return runEnqueue(cmd, "/k8s/create_node", url.Values{
			"nodepool_name": {createPoolName},
			"node_number":   {formatNodeNumber(createNodeNumber)},
		})
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.AddCommand(createClusterCmd, createNodepoolCmd, createNodeCmd)

	for _, c := range []*cobra.Command{createClusterCmd, createNodepoolCmd, createNodeCmd} {
		c.Flags().StringVar(&createKconfigPath, "kconfig", "", "path to the cluster config file (required)")
		c.Flags().BoolVar(&createWait, "wait", false, "poll task_status until the task reaches a terminal state")
	}
	createNodepoolCmd.Flags().StringVar(&createPoolName, "nodepool", "", "nodepool name")
	createNodeCmd.Flags().StringVar(&createPoolName, "nodepool", "", "nodepool name")
	createNodeCmd.Flags().IntVar(&createNodeNumber, "node", 0, "node number")
}

func runEnqueue(cmd *cobra.Command, path string, extra url.Values) error {
	if createKconfigPath == "" {
		return fmt.Errorf("--kconfig is required")
	}
	raw, err := os.ReadFile(createKconfigPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", createKconfigPath, err)
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

	if !createWait {
		return nil
	}
	return waitForTask(client, taskID, clientID, secret)
}

func waitForTask(client *apiClient, taskID, clientID, secret string) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" waiting on task %s...", taskID)
	s.Start()
	defer s.Stop()

	for {
		status, err := client.taskStatus(taskID, clientID, secret)
		if err != nil {
			return err
		}
		switch fmt.Sprintf("%v", status["state"]) {
		case "SUCCESS":
			s.Stop()
			color.Green("task %s succeeded", taskID)
			return nil
		case "FAILURE":
			s.Stop()
			color.Red("task %s failed: %v", taskID, status["error"])
			return fmt.Errorf("task %s failed", taskID)
		}
		time.Sleep(2 * time.Second)
	}
}
