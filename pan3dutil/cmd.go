/*
Copyright © 2024 the Pan3D authors.
This file is part of Pan3D.

Pan3D is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Pan3D is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Pan3D.  If not, see <http://www.gnu.org/licenses/>.
*/

package pan3dutil

import (
	"encoding/json"
	"fmt"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/pan3d"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to Pan3D.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the location of a file holding values
              for the options below.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "config_path",
			usage: `
              config_path specifies a saved Pan3D state (JSON) to import
              after the dataset is loaded. The state selects the dataset,
              data array, axes, time index, slicing, and ui and render settings.`,
			shorthand:  "b",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "dataset_path",
			usage: `
              dataset_path specifies the dataset to load: a local NetCDF file
              or Zarr store, an http(s) URL, a blob URL (gs://, s3://, file://),
              or a name from a catalog when --source is set.`,
			shorthand:  "d",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "source",
			usage: `
              source specifies where dataset_path is looked up. It is one of
              default, xarray (tutorial datasets), pangeo or esgf.`,
			defaultVal: string(pan3d.SourceDefault),
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "server",
			usage: `
              server specifies whether to start the viewer server.`,
			shorthand:  "s",
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "no-server",
			usage: `
              no-server loads the dataset and config without starting the
              viewer server, which is useful for checking a saved state.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "address",
			usage: `
              address specifies the address the viewer server listens on.`,
			defaultVal: "localhost:8080",
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "open",
			usage: `
              open specifies whether to open the viewer in a web browser
              once the server starts.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "pangeo",
			usage: `
              pangeo specifies whether to offer the datasets in the pangeo
              catalog (see PangeoCatalog) alongside the tutorial datasets.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "RenderDelay",
			usage: `
              RenderDelay is how long each render waits before building the
              mesh, for example "1s" or "250ms".`,
			defaultVal: "1s",
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile specifies a file to write log messages to in addition
              to standard error. The file is rotated as it grows.
              It can include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the least severe level of log message that is
              written: debug, info, warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "CacheDir",
			usage: `
              CacheDir is the directory where remote datasets are downloaded.
              If empty, a directory under the system temporary directory is used.
              It can include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "TutorialURL",
			usage: `
              TutorialURL is the base URL tutorial datasets are downloaded from.`,
			defaultVal: pan3d.DefaultTutorialURL,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "PangeoCatalog",
			usage: `
              PangeoCatalog is the location of the JSON document listing the
              pangeo catalog's datasets. It is required for the pangeo source.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "ESGFNode",
			usage: `
              ESGFNode is the base URL of the ESGF index node used to find
              datasets from the esgf source.`,
			defaultVal: pan3d.DefaultESGFNode,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "output",
			usage: `
              output specifies a file to write the exported state to. The
              state is always printed to standard output.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{exportCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("PAN3D")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // The flag only needs to be created once.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	Root.AddCommand(versionCmd)
	Root.AddCommand(exportCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("pan3d: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command. It loads a dataset and an optional saved
// state and serves the viewer.
var Root = &cobra.Command{
	Use:   "pan3d",
	Short: "Explore N-dimensional datasets in a web browser.",
	Long: `Pan3D loads a NetCDF or Zarr dataset, lets you pick one of its arrays,
assign the array's dimensions to X, Y, Z and time axes, slice each
dimension, and renders the result in a web browser.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'PAN3D_var' where 'var' is the
name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := setLogger()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		catalog := newCatalog()
		b, err := LoadBuilder(ctx, log, catalog)
		if err != nil {
			return err
		}
		if !serverEnabled() {
			log.Info("loaded dataset; not starting the server")
			return nil
		}
		return Serve(ctx, b, catalog, log)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of Pan3D.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("Pan3D v%s\n", pan3d.Version)
	},
	DisableAutoGenTag: true,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the state of the loaded dataset",
	Long: `export loads the dataset and config given by --dataset_path and
--config_path, and prints the resulting state as JSON. The output can be
imported again with --config_path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := setLogger()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		b, err := LoadBuilder(ctx, log, newCatalog())
		if err != nil {
			return err
		}
		cfg, err := b.ExportConfig(expand(Cfg.GetString("output")))
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
	DisableAutoGenTag: true,
}
