package gmailc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// NewService builds an authenticated Gmail service from the OAuth
// credentials file, running the manual flow when no token is cached.
func NewService(ctx context.Context, credentialsPath, tokenPath string) (*gmail.Service, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %v", ErrAuth, credentialsPath, err)
	}

	config, err := google.ConfigFromJSON(b,
		gmail.GmailModifyScope,
		gmail.GmailComposeScope,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot parse %s: %v", ErrAuth, credentialsPath, err)
	}

	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		slog.Info("cached token not found, starting OAuth flow", "path", tokenPath)
		tok, err = getTokenFromWeb(config)
		if err != nil {
			return nil, err
		}
		saveToken(tokenPath, tok)
	}

	srv, err := gmail.NewService(ctx, option.WithTokenSource(config.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("cannot create gmail service: %w", err)
	}

	return srv, nil
}

func getTokenFromWeb(config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Println("1) Copy this URL and open it in your browser:")
	fmt.Println(authURL)
	fmt.Println("\n2) Sign in and accept the permissions.")
	fmt.Print("3) Paste the authorization code here: ")

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		return nil, fmt.Errorf("cannot read auth code: %w", err)
	}

	tok, err := config.Exchange(context.Background(), authCode)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot exchange code for token: %v", ErrAuth, err)
	}
	return tok, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) {
	f, err := os.Create(path)
	if err != nil {
		slog.Warn("cannot save token", "path", path, "error", err)
		return
	}
	defer f.Close()

	_ = json.NewEncoder(f).Encode(tok)
	slog.Info("token saved", "path", path)
}
