package main

import (
    "context"
    "crypto/md5"
    "fmt"
    "os"

    "github.com/fatih/color"
    "github.com/olekukonko/tablewriter"
    "github.com/spf13/cobra"

    "github.com/rudilee/OrangeServer/internal/models"
)

var (
    green  = color.New(color.FgGreen).SprintFunc()
    red    = color.New(color.FgRed).SprintFunc()
    yellow = color.New(color.FgYellow).SprintFunc()
    bold   = color.New(color.Bold).SprintFunc()
)

func levelName(level models.Level) string {
    switch level {
    case models.LevelManager:
        return bold("manager")
    case models.LevelSupervisor:
        return yellow("supervisor")
    default:
        return "agent"
    }
}

func createAgentCommands() *cobra.Command {
    agentCmd := &cobra.Command{
        Use:   "agents",
        Short: "Manage agents",
    }

    agentCmd.AddCommand(
        createAgentListCommand(),
        createAgentAddCommand(),
        createAgentDeleteCommand(),
    )

    return agentCmd
}

func createAgentListCommand() *cobra.Command {
    return &cobra.Command{
        Use:   "list",
        Short: "List all agents",
        RunE: func(cmd *cobra.Command, args []string) error {
            if err := initializeServices(); err != nil {
                return err
            }
            defer database.Close()

            rows, err := database.QueryContext(context.Background(),
                `SELECT id, name, fullname, level FROM acd_agent ORDER BY name`)
            if err != nil {
                return fmt.Errorf("failed to list agents: %v", err)
            }
            defer rows.Close()

            table := tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"ID", "Username", "Fullname", "Level"})
            table.SetBorder(false)
            table.SetAutoWrapText(false)

            count := 0
            for rows.Next() {
                var id int64
                var username, fullname string
                var level models.Level

                if err := rows.Scan(&id, &username, &fullname, &level); err != nil {
                    return err
                }

                table.Append([]string{
                    fmt.Sprintf("%d", id), username, fullname, levelName(level),
                })
                count++
            }
            if err := rows.Err(); err != nil {
                return err
            }

            if count == 0 {
                fmt.Println("No agents found")
                return nil
            }

            table.Render()
            return nil
        },
    }
}

func createAgentAddCommand() *cobra.Command {
    var (
        password string
        fullname string
        level    int
    )

    cmd := &cobra.Command{
        Use:   "add <username>",
        Short: "Add a new agent",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            if err := initializeServices(); err != nil {
                return err
            }
            defer database.Close()

            passwordMD5 := fmt.Sprintf("%x", md5.Sum([]byte(password)))

            _, err := database.ExecContext(context.Background(),
                `INSERT INTO acd_agent (name, password, fullname, level) VALUES ($1, $2, $3, $4)`,
                args[0], passwordMD5, fullname, level)
            if err != nil {
                return fmt.Errorf("failed to create agent: %v", err)
            }

            fmt.Printf("%s Agent '%s' created\n", green("✓"), args[0])
            return nil
        },
    }

    cmd.Flags().StringVarP(&password, "password", "p", "", "Agent password")
    cmd.Flags().StringVar(&fullname, "fullname", "", "Display name")
    cmd.Flags().IntVar(&level, "level", 0, "Privilege level (0=agent, 1=supervisor, 2=manager)")

    cmd.MarkFlagRequired("password")

    return cmd
}

func createAgentDeleteCommand() *cobra.Command {
    return &cobra.Command{
        Use:   "delete <username>",
        Short: "Delete an agent",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            if err := initializeServices(); err != nil {
                return err
            }
            defer database.Close()

            result, err := database.ExecContext(context.Background(),
                `DELETE FROM acd_agent WHERE name = $1`, args[0])
            if err != nil {
                return fmt.Errorf("failed to delete agent: %v", err)
            }

            if affected, _ := result.RowsAffected(); affected == 0 {
                fmt.Printf("%s Agent '%s' not found\n", red("✗"), args[0])
                return nil
            }

            fmt.Printf("%s Agent '%s' deleted\n", green("✓"), args[0])
            return nil
        },
    }
}

func createSkillCommands() *cobra.Command {
    skillCmd := &cobra.Command{
        Use:   "skills",
        Short: "Manage skills",
    }

    skillCmd.AddCommand(&cobra.Command{
        Use:   "list",
        Short: "List skills and how many agents hold each",
        RunE: func(cmd *cobra.Command, args []string) error {
            if err := initializeServices(); err != nil {
                return err
            }
            defer database.Close()

            rows, err := database.QueryContext(context.Background(),
                `SELECT s.id, s.name, COUNT(a.agent_id)
                   FROM acd_skill s
                   LEFT JOIN acd_agent_skill a ON a.skill_id = s.id
                  GROUP BY s.id, s.name
                  ORDER BY s.name`)
            if err != nil {
                return fmt.Errorf("failed to list skills: %v", err)
            }
            defer rows.Close()

            table := tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"ID", "Name", "Agents"})
            table.SetBorder(false)

            for rows.Next() {
                var id int64
                var name string
                var agents int

                if err := rows.Scan(&id, &name, &agents); err != nil {
                    return err
                }
                table.Append([]string{fmt.Sprintf("%d", id), name, fmt.Sprintf("%d", agents)})
            }
            if err := rows.Err(); err != nil {
                return err
            }

            table.Render()
            return nil
        },
    })

    return skillCmd
}

func createGroupCommands() *cobra.Command {
    groupCmd := &cobra.Command{
        Use:   "groups",
        Short: "Manage queue groups",
    }

    groupCmd.AddCommand(&cobra.Command{
        Use:   "list",
        Short: "List queue groups and their member counts",
        RunE: func(cmd *cobra.Command, args []string) error {
            if err := initializeServices(); err != nil {
                return err
            }
            defer database.Close()

            rows, err := database.QueryContext(context.Background(),
                `SELECT q.id, q.name, COUNT(g.agent_id)
                   FROM acd_queue q
                   LEFT JOIN acd_agent_group g ON g.queue_id = q.id
                  GROUP BY q.id, q.name
                  ORDER BY q.name`)
            if err != nil {
                return fmt.Errorf("failed to list groups: %v", err)
            }
            defer rows.Close()

            table := tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"ID", "Name", "Members"})
            table.SetBorder(false)

            for rows.Next() {
                var id int64
                var name string
                var members int

                if err := rows.Scan(&id, &name, &members); err != nil {
                    return err
                }
                table.Append([]string{fmt.Sprintf("%d", id), name, fmt.Sprintf("%d", members)})
            }
            if err := rows.Err(); err != nil {
                return err
            }

            table.Render()
            return nil
        },
    })

    return groupCmd
}
