// rillctl manages users on a Rill server over the binary protocol.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ValerySidorin/rill/client"
	"github.com/ValerySidorin/rill/observability"
	"github.com/ValerySidorin/rill/user"
	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	"gopkg.in/yaml.v3"
)

var (
	Commit string

	confPath string
	jsonOut  bool

	conf   client.Config
	logger *slog.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "rillctl",
		Short:         "Manage users and sessions on a Rill server",
		Version:       client.Version + " " + Commit,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(confPath, &conf); err != nil {
				return err
			}
			logger = newLogger(conf.Log)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&confPath, "config", "c", "", "path to config file")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")

	root.AddCommand(pingCmd(), loginCmd(), logoutCmd(), userCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check server liveness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(false, func(ctx context.Context, conn *client.Conn) error {
				if err := conn.Ping(ctx); err != nil {
					return err
				}
				fmt.Println("pong")
				return nil
			})
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Verify the configured credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(true, func(ctx context.Context, conn *client.Conn) error {
				// withConn already logged in; show who we are.
				details, err := conn.Users().Get(ctx, user.Name(conf.Username))
				if err != nil {
					return err
				}
				if details == nil {
					return errors.New("logged in user not visible")
				}
				return printResult(details)
			})
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the session of the configured credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(true, func(ctx context.Context, conn *client.Conn) error {
				return conn.Users().Logout(ctx)
			})
		},
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
	}

	cmd.AddCommand(userListCmd(), userGetCmd(), userCreateCmd(), userDeleteCmd(),
		userUpdateCmd(), userUpdatePermissionsCmd(), userChangePasswordCmd())
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(true, func(ctx context.Context, conn *client.Conn) error {
				users, err := conn.Users().List(ctx)
				if err != nil {
					return err
				}
				if jsonOut {
					return printResult(users)
				}
				for _, u := range users {
					fmt.Printf("%d\t%s\t%s\n", u.ID, u.Username, u.Status)
				}
				return nil
			})
		},
	}
}

func userGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id|username>",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(true, func(ctx context.Context, conn *client.Conn) error {
				details, err := conn.Users().Get(ctx, parseIdentifier(args[0]))
				if err != nil {
					return err
				}
				if details == nil {
					return fmt.Errorf("user %s not found", args[0])
				}
				return printResult(details)
			})
		},
	}
}

func userCreateCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "create <username> <password>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := user.ParseStatus(status)
			if err != nil {
				return err
			}
			return withConn(true, func(ctx context.Context, conn *client.Conn) error {
				details, err := conn.Users().Create(ctx, args[0], args[1], st, nil)
				if err != nil {
					return err
				}
				return printResult(details)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "active", "user status: active or inactive")
	return cmd
}

func userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|username>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(true, func(ctx context.Context, conn *client.Conn) error {
				return conn.Users().Delete(ctx, parseIdentifier(args[0]))
			})
		},
	}
}

func userUpdateCmd() *cobra.Command {
	var username, status string

	cmd := &cobra.Command{
		Use:   "update <id|username>",
		Short: "Update username and/or status of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var newName *string
			if cmd.Flags().Changed("username") {
				newName = &username
			}
			var newStatus *user.Status
			if cmd.Flags().Changed("status") {
				st, err := user.ParseStatus(status)
				if err != nil {
					return err
				}
				newStatus = &st
			}
			if newName == nil && newStatus == nil {
				return errors.New("nothing to update")
			}
			return withConn(true, func(ctx context.Context, conn *client.Conn) error {
				return conn.Users().Update(ctx, parseIdentifier(args[0]), newName, newStatus)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "new username")
	cmd.Flags().StringVar(&status, "status", "", "new status: active or inactive")
	return cmd
}

func userUpdatePermissionsCmd() *cobra.Command {
	var fromFile string
	var clearPerms bool

	cmd := &cobra.Command{
		Use:   "update-permissions <id|username>",
		Short: "Replace the permission set of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearPerms == (fromFile != "") {
				return errors.New("exactly one of --from-file and --clear is required")
			}
			var perms *user.Permissions
			if fromFile != "" {
				data, err := os.ReadFile(fromFile)
				if err != nil {
					return fmt.Errorf("read permissions: %w", err)
				}
				perms = &user.Permissions{}
				if err := sonic.Unmarshal(data, perms); err != nil {
					return fmt.Errorf("unmarshal permissions: %w", err)
				}
			}
			return withConn(true, func(ctx context.Context, conn *client.Conn) error {
				return conn.Users().UpdatePermissions(ctx, parseIdentifier(args[0]), perms)
			})
		},
	}
	cmd.Flags().StringVar(&fromFile, "from-file", "", "path to a JSON permissions document")
	cmd.Flags().BoolVar(&clearPerms, "clear", false, "remove all permissions")
	return cmd
}

func userChangePasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "change-password <id|username> <current> <new>",
		Short: "Change the password of a user",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(true, func(ctx context.Context, conn *client.Conn) error {
				return conn.Users().ChangePassword(ctx, parseIdentifier(args[0]), args[1], args[2])
			})
		},
	}
}

// withConn dials the configured server, optionally logs in with the
// configured credentials, and runs fn.
func withConn(login bool, fn func(ctx context.Context, conn *client.Conn) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	shutdown, err := observability.Init(ctx, conf.Observability, logger)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer shutdown(context.Background()) //nolint:errcheck

	conn, err := conf.Dial(ctx, client.WithLogger(logger))
	if err != nil {
		return err
	}
	defer conn.Close()

	if login {
		if conf.Username == "" {
			return errors.New("no credentials in config")
		}
		if _, err := conn.Users().Login(ctx, conf.Username, conf.Password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	return fn(ctx, conn)
}

func parseIdentifier(arg string) user.Identifier {
	if id, err := strconv.ParseUint(arg, 10, 32); err == nil {
		return user.ID(uint32(id))
	}
	return user.Name(arg)
}

func printResult(v any) error {
	out, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newLogger(cfg client.LogConfig) *slog.Logger {
	level := parseLogLevel(cfg.Level)
	if cfg.Type == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseLogLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadConfig(filePath string, cfg *client.Config) error {
	paths := []string{}

	if filePath == "" {
		paths = append(paths, "./rillctl.yaml", "conf/rillctl.yaml", "config/rillctl.yaml")
	} else {
		paths = append(paths, filePath)
	}

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}

		cfg.SetDefaults()
		return cfg.Validate()
	}

	// No config file; run on defaults and flags.
	cfg.SetDefaults()
	return cfg.Validate()
}
