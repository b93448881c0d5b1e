package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PROJECTQL"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "projectql",
		Short: "projectql: GraphQL over HTTP with selection projections",
		Long: `
projectql serves a GraphQL schema over HTTP GET and POST, caching parsed
queries, and compiles the selection projections resolvers use to fetch only
the requested fields.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "",
		"Configuration file. Overridden by environment variables and flags.")
	root.AddCommand(newServeCmd(), newCompileSDLCmd(), newProjectCmd())
	return root
}

// newConfig binds the flags of cmd, PROJECTQL_* environment variables and
// the optional --config file into one viper instance. Flags win over the
// environment, which wins over the file.
func newConfig(cmd *cobra.Command) (*viper.Viper, error) {
	conf := viper.New()
	conf.SetEnvPrefix(envPrefix)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	conf.AutomaticEnv()
	if err := conf.BindPFlags(cmd.Flags()); err != nil {
		return nil, errors.Wrap(err, "binding flags")
	}
	if file, _ := cmd.Flags().GetString("config"); file != "" {
		conf.SetConfigFile(file)
		if err := conf.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", file)
		}
	}
	return conf, nil
}

// addSchemaFlags registers the flags shared by every command that builds a
// schema.
func addSchemaFlags(fs *flag.FlagSet) {
	fs.String("schema", "", "Base GraphQL SDL file. Empty uses empty Query and Mutation root types.")
	fs.StringSlice("extension", nil, "SDL file extending the base schema. Repeatable.")
}

// loadSchemaSources reads the base SDL and extension files named in conf.
func loadSchemaSources(conf *viper.Viper) (string, []string, error) {
	var base string
	if path := conf.GetString("schema"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", nil, errors.Wrap(err, "reading schema")
		}
		base = string(b)
	}
	var extensions []string
	for _, path := range conf.GetStringSlice("extension") {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", nil, errors.Wrap(err, "reading extension")
		}
		extensions = append(extensions, string(b))
	}
	return base, extensions, nil
}
