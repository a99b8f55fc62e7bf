// Command emsctl is a thin CLI over the client package's FIFO session
// protocol (out of core scope per spec.md §1, supplemented here the
// way the teacher ships both a server and a client/ package).
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/ems/client"
)

func main() {
	var serverPipe string
	var timeout time.Duration

	root := &cobra.Command{
		Use:          "emsctl",
		Short:        "emsctl - Event Management Service session client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&serverPipe, "server", "/tmp/ems-server.sock", "server FIFO path")
	root.PersistentFlags().DurationVar(&timeout, "timeout", client.DefaultConnectTimeout, "connect handshake timeout")

	root.AddCommand(createCmd(&serverPipe, &timeout))
	root.AddCommand(reserveCmd(&serverPipe, &timeout))
	root.AddCommand(showCmd(&serverPipe, &timeout))
	root.AddCommand(listCmd(&serverPipe, &timeout))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "emsctl:", err)
		os.Exit(1)
	}
}

func withSession(serverPipe *string, timeout *time.Duration, fn func(c *client.Client) error) error {
	c := client.New(*serverPipe)
	if err := c.ConnectTimeout(*timeout); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.Quit()
	return fn(c)
}

func createCmd(serverPipe *string, timeout *time.Duration) *cobra.Command {
	return &cobra.Command{
		Use:   "create <event_id> <rows> <cols>",
		Short: "create a new event grid",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, rows, cols, err := parseCreateArgs(args)
			if err != nil {
				return err
			}
			return withSession(serverPipe, timeout, func(c *client.Client) error {
				if err := c.Create(id, rows, cols); err != nil {
					return err
				}
				fmt.Printf("created event %d (%dx%d)\n", id, rows, cols)
				return nil
			})
		},
	}
}

func reserveCmd(serverPipe *string, timeout *time.Duration) *cobra.Command {
	return &cobra.Command{
		Use:   "reserve <event_id> <x,y> [x,y ...]",
		Short: "reserve one or more seats atomically",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUint32(args[0])
			if err != nil {
				return err
			}
			coords, err := parseCoords(args[1:])
			if err != nil {
				return err
			}
			return withSession(serverPipe, timeout, func(c *client.Client) error {
				if err := c.Reserve(id, coords); err != nil {
					return err
				}
				fmt.Printf("reserved %d seat(s) on event %d\n", len(coords), id)
				return nil
			})
		},
	}
}

func showCmd(serverPipe *string, timeout *time.Duration) *cobra.Command {
	return &cobra.Command{
		Use:   "show <event_id>",
		Short: "print an event's seat grid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUint32(args[0])
			if err != nil {
				return err
			}
			return withSession(serverPipe, timeout, func(c *client.Client) error {
				rows, cols, seats, err := c.Show(id)
				if err != nil {
					return err
				}
				for r := 0; r < rows; r++ {
					fields := make([]string, cols)
					for col := 0; col < cols; col++ {
						fields[col] = strconv.FormatUint(uint64(seats[r*cols+col]), 10)
					}
					fmt.Println(strings.Join(fields, " "))
				}
				return nil
			})
		},
	}
}

func listCmd(serverPipe *string, timeout *time.Duration) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every known event id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(serverPipe, timeout, func(c *client.Client) error {
				ids, err := c.List()
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Println("No events")
					return nil
				}
				for _, id := range ids {
					fmt.Printf("Event: %d\n", id)
				}
				return nil
			})
		},
	}
}

func parseCreateArgs(args []string) (id uint32, rows, cols int, err error) {
	id, err = parseUint32(args[0])
	if err != nil {
		return 0, 0, 0, err
	}
	r, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid rows %q", args[1])
	}
	c, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid cols %q", args[2])
	}
	return id, int(r), int(c), nil
}

func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid non-negative integer %q", s)
	}
	return uint32(n), nil
}

func parseCoords(args []string) ([]client.Coord, error) {
	coords := make([]client.Coord, len(args))
	for i, a := range args {
		parts := strings.SplitN(strings.Trim(a, "()"), ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid coordinate %q, want x,y", a)
		}
		x, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate %q", a)
		}
		y, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate %q", a)
		}
		coords[i] = client.Coord{X: x, Y: y}
	}
	return coords, nil
}
