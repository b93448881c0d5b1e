package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	schema "github.com/hanpama/projectql/internal/schema"
)

func newCompileSDLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile-sdl",
		Short: "Merge and validate GraphQL SDL into a single schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := newConfig(cmd)
			if err != nil {
				return err
			}
			base, extensions, err := loadSchemaSources(conf)
			if err != nil {
				return err
			}
			sch, _, err := schema.Build(base, extensions...)
			if err != nil {
				return err
			}
			sdl := schema.Render(sch)

			out := conf.GetString("out")
			if out == "" {
				_, err := cmd.OutOrStdout().Write([]byte(sdl))
				return err
			}
			return errors.Wrap(os.WriteFile(out, []byte(sdl), 0644), "writing SDL")
		},
	}
	addSchemaFlags(cmd.Flags())
	cmd.Flags().String("out", "", "Write compiled SDL to file (default: stdout)")
	return cmd
}
