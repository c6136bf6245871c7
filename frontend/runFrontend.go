package frontend

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"

	"github.com/lifetrack-app/lifetrack/frontend/client"
	"github.com/lifetrack-app/lifetrack/frontend/cmd"
)

// RunFrontend wires up the HTTP client and starts the interactive shell.
func RunFrontend() {
	err := godotenv.Load("frontend/.env")
	if err != nil {
		fmt.Println("Error loading frontend/.env file")
	}

	signingKey := os.Getenv("JWT_SIGNING_KEY")
	authToken := os.Getenv("AUTH_TOKEN")
	authTokenRefresh := os.Getenv("AUTH_TOKEN_REFRESH")
	serverURL := os.Getenv("SERVER_URL")

	// Start each session signed out; stale tokens from a previous run are dropped.
	keyring.Delete(client.KeyringService, authToken)
	keyring.Delete(client.KeyringService, authTokenRefresh)

	client.InitClient(serverURL, signingKey, authToken, authTokenRefresh)
	cmd.InitCommands()
	cmd.Execute()
}
