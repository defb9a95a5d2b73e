package cmd

import (
	"fmt"
	"os"

	"github.com/chalkan3/sloth-kubernetes/internal/common"
	"github.com/spf13/cobra"
)

var (
	verbose bool

	// Version information - set by main.go
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
	BuiltBy = "unknown"
)

// SetVersionInfo sets the version information from main.go
func SetVersionInfo(version, commit, date, builtBy string) {
	Version = version
	Commit = commit
	Date = date
	BuiltBy = builtBy
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sloth",
	Short: "RKE2 cluster reconciliation client and worker",
	Long: `Sloth Kubernetes drives RKE2 cluster create/update/status/kubeconfig
operations against a cloud provider's server API over SSH. "sloth serve"
runs the HTTP API and task worker; "sloth create"/"update"/"status"/
"kubeconfig" are a client against a running server.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Load saved credentials before running any command
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&apiServerFlag, "api-server", "", "sloth HTTP API base URL (default: $SLOTH_API_SERVER or http://localhost:8080)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(`Sloth Kubernetes %s
  Commit:    %s
  Built:     %s
  Built by:  %s
`, Version, Commit, Date, BuiltBy))
	rootCmd.Version = Version
}

func initConfig() {
	// Load saved config/credentials from ~/.sloth-kubernetes/config,
	// falling back to the legacy credentials file, before every command.
	_ = common.LoadSavedConfig()
	_ = common.LoadSavedCredentials()
}
