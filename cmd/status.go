package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	statusKconfigPath string
	statusTaskID      string
	statusFormat      string
	statusTree        bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Enqueue a cluster status lookup, or check a task's status",
	Long: `Without --task-id, status enqueues a new "status" task against
the cluster named in --kconfig and prints its task_id. With --task-id,
it instead fetches and prints that task's current state.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusKconfigPath, "kconfig", "", "path to the cluster config file")
	statusCmd.Flags().StringVar(&statusTaskID, "task-id", "", "check an already-enqueued task instead of creating one")
	statusCmd.Flags().StringVar(&statusFormat, "format", "table", "output format: table|json|yaml")
	statusCmd.Flags().BoolVar(&statusTree, "tree", false, "with --task-id, print the full subtask tree instead of the rolled-up status")
}

func runStatus(cmd *cobra.Command, args []string) error {
	clientID := os.Getenv("KAMATERA_API_CLIENT_ID")
	secret := os.Getenv("KAMATERA_API_SECRET")
	client := newAPIClient()

	if statusTaskID != "" {
		if statusTree {
			result, err := client.taskTree(statusTaskID, clientID, secret)
			if err != nil {
				return err
			}
			return printStatus(result)
		}
		result, err := client.taskStatus(statusTaskID, clientID, secret)
		if err != nil {
			return err
		}
		return printStatus(result)
	}

	if statusKconfigPath == "" {
		return fmt.Errorf("one of --kconfig or --task-id is required")
	}
	raw, err := os.ReadFile(statusKconfigPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", statusKconfigPath, err)
	}

	taskID, err := client.enqueue("/k8s/status", url.Values{"kconfig": {string(raw)}}, clientID, secret)
	if err != nil {
		return err
	}
	fmt.Printf("task_id: %s\n", taskID)
	fmt.Println("re-run with --task-id to check progress")
	return nil
}

func printStatus(result map[string]interface{}) error {
	switch statusFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		return enc.Encode(result)
	default:
		return printStatusTable(result)
	}
}

func printStatusTable(result map[string]interface{}) error {
	if tree, ok := result["tree"].([]interface{}); ok {
		for i, entry := range tree {
			node, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			state, _ := node["state"].(string)
			fmt.Printf("%d: %s\n", i, state)
		}
		return nil
	}

	state, _ := result["state"].(string)
	switch state {
	case "SUCCESS":
		color.Green("State: %s", state)
	case "FAILURE":
		color.Red("State: %s", state)
	default:
		color.Yellow("State: %s", state)
	}

	if errMsg, ok := result["error"].(string); ok && errMsg != "" {
		fmt.Printf("Error: %s\n", errMsg)
	}
	if res, ok := result["result"]; ok && res != nil {
		out, err := json.MarshalIndent(res, "", "  ")
		if err == nil {
			fmt.Printf("Result:\n%s\n", out)
		}
	}
	return nil
}
