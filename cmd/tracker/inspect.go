package main

import (
	"fmt"
	"os"

	"github.com/kr/pretty"
	"github.com/urfave/cli/v2"

	"transit-tracker/internal/timeline"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Parse a route file and print its timeline",
		Flags: []cli.Flag{
			routeFlag,
			&cli.BoolFlag{Name: "rows", Usage: "also print the expanded stop rows of each boarding segment"},
		},
		Action: func(c *cli.Context) error {
			route, err := loadRoute(c.String("route"))
			if err != nil {
				return err
			}
			segments, err := route.Snapshot()
			if err != nil {
				return err
			}
			pretty.Println(segments)
			fmt.Printf("routes: %v\n", route.RouteNumbers())
			if c.Bool("rows") {
				for _, seg := range route.BoardingSegments() {
					fmt.Printf("segment %d (route %d):\n", seg.ID, seg.RouteNumber())
					pretty.Println(route.ExpandedRows(seg.ID))
				}
			}
			return nil
		},
	}
}

func loadRoute(path string) (*timeline.Route, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	route, err := timeline.ParseDirections(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return route, nil
}
