package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	spotifyapi "github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-track-ranker/internal/auth"
	"github.com/justestif/go-spotify-track-ranker/internal/web"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Select tracks and add them to a playlist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applySelectionFlags(cmd.Flags(), &cfg.Selection); err != nil {
				return err
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			req, err := cfg.Selection.Request()
			if err != nil {
				return err
			}

			client, err := a.authenticate(ctx)
			if err != nil {
				return err
			}

			result, err := a.newSelector(client).Run(ctx, req)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), formatResult(result, req.Playlist, req.DryRun))
			return nil
		},
	}
	addSelectionFlags(cmd.Flags())
	cmd.MarkFlagsMutuallyExclusive("max", "min", "random")
	return cmd
}

func newFeaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "Print the audio features of your saved tracks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			client, err := a.authenticate(ctx)
			if err != nil {
				return err
			}

			table, err := a.newSelector(client).ReferenceTable(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatTable(table))
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the selection API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				if cfg.Server.Addr, err = cmd.Flags().GetString("addr"); err != nil {
					return err
				}
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			spAuth, err := auth.NewSpotifyAuth(a.credentials())
			if err != nil {
				return err
			}

			newRunner := func(ctx context.Context, token *oauth2.Token) (web.Runner, oauth2.TokenSource, error) {
				api := spotifyapi.New(spAuth.Client(ctx, token), spotifyapi.WithRetry(true))
				return a.newSelector(a.catalog(api)), api, nil
			}

			server := web.NewServer(web.ServerConfig{
				Addr:      cfg.Server.Addr,
				Auth:      spAuth,
				NewRunner: newRunner,
				Defaults:  cfg.Selection,
				Logger:    a.logger,
			})
			return server.Run(ctx)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from config)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token for the configured Spotify app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tokens, err := tokenStore(cfg.Spotify)
			if err != nil {
				return err
			}
			if err := tokens.Delete(); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Removed token for client %s from %s\n", cfg.Spotify.ClientID, tokens.Path())
			return nil
		},
	}
}
