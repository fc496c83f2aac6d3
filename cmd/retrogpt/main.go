package main

import (
	"context"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/retrogpt/client/internal/api"
	"github.com/retrogpt/client/internal/config"
	"github.com/retrogpt/client/internal/service/orchestrator"
	"github.com/retrogpt/client/internal/session"
	"github.com/retrogpt/client/internal/ui"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	root := &cobra.Command{
		Use:   "retrogpt",
		Short: "Terminal client for the RetroGPT backend",
	}
	root.AddCommand(chatCmd(), loginCmd(), logoutCmd(), chatsCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildOrchestrator wires the full client stack from the environment.
func buildOrchestrator() (*orchestrator.Orchestrator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	tokenFile := cfg.Client.TokenFile
	if tokenFile == "" {
		tokenFile, err = session.DefaultSlotPath()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve token file location: %w", err)
		}
	}

	client := api.New(cfg.Client.BaseURL, cfg.Client.HTTPTimeout)
	store := session.NewStore(client, session.NewFileSlot(tokenFile))
	return orchestrator.New(client, store), nil
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the retro chat screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator()
			if err != nil {
				return err
			}
			defer orch.Close()

			if err := orch.RefreshChats(cmd.Context()); err != nil {
				log.Printf("warning: initial chat sync failed: %v", err)
			}

			program := tea.NewProgram(ui.New(orch), tea.WithAltScreen())
			_, err = program.Run()
			return err
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <access-token>",
		Short: "Exchange a provider access token for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator()
			if err != nil {
				return err
			}
			defer orch.Close()

			if err := orch.Login(cmd.Context(), args[0]); err != nil {
				return err
			}
			sess := orch.Session()
			if sess.UserID != nil {
				fmt.Printf("logged in as user %d\n", *sess.UserID)
			} else {
				fmt.Println("logged in")
			}
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the stored session and return to anonymous",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator()
			if err != nil {
				return err
			}
			defer orch.Close()

			orch.Logout()
			fmt.Println("logged out")
			return nil
		},
	}
}

func chatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List the chats owned by the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator()
			if err != nil {
				return err
			}
			defer orch.Close()

			if err := orch.RefreshChats(context.Background()); err != nil {
				return err
			}
			chats := orch.Chats()
			if len(chats) == 0 {
				fmt.Println("no chats")
				return nil
			}
			for _, c := range chats {
				fmt.Printf("%6d  %s\n", c.ID, c.Name)
			}
			return nil
		},
	}
}
