package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// credentials come from the environment (or a .env file) so they never
// appear in shell history
type credentials struct {
	User        string
	Password    string
	BearerToken string
}

var rootCmd = &cobra.Command{
	Use:   "aemupload",
	Short: "Upload files and folders to AEM Assets",
	Long: `aemupload transfers local files and directory trees to an AEM Assets
instance using the direct-binary upload protocol.

Credentials are read from the AEM_USER/AEM_PASSWORD (or AEM_TOKEN)
environment variables; a .env file in the working directory is loaded
automatically.`,
}

func main() {
	if err := godotenv.Load(); err != nil {
		// no .env file is fine; plain environment variables still work
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: could not load .env file: %s\n", err)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadCredentials() credentials {
	return credentials{
		User:        os.Getenv("AEM_USER"),
		Password:    os.Getenv("AEM_PASSWORD"),
		BearerToken: os.Getenv("AEM_TOKEN"),
	}
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
