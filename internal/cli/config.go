package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/netdeploy/internal/config"
	"github.com/dl-alexandre/netdeploy/internal/types"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for inspecting and changing netdeploy configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  "Display configuration after defaults, the config file, environment and flags are applied",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the config file",
	Long:  "Set a value in the config file. Keys are the TOML names shown by 'config show --output json'",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

type configView struct {
	Path   string         `json:"path" yaml:"path"`
	Config *config.Config `json:"config" yaml:"config"`
}

func (v configView) AsTableRenderer() types.TableRenderer {
	c := v.Config
	return keyValueTable(map[string]string{
		"path":             v.Path,
		"site_id":          c.SiteID,
		"api_base":         c.APIBase,
		"digest":           c.Digest,
		"concurrency":      strconv.Itoa(c.Concurrency),
		"max_retries":      strconv.Itoa(c.MaxRetries),
		"retry_base_delay": strconv.Itoa(c.RetryBaseDelay),
		"request_timeout":  strconv.Itoa(c.RequestTimeout),
		"exclude":          strings.Join(c.Exclude, ","),
		"common_excludes":  strconv.FormatBool(c.CommonExcludes),
		"digest_cache":     strconv.FormatBool(c.DigestCache),
		"symlinks":         c.Symlinks,
		"log_level":        c.LogLevel,
		"output":           string(c.OutputFormat),
	})
}

func configFilePath() (string, error) {
	if globalFlags.ConfigPath != "" {
		return globalFlags.ConfigPath, nil
	}
	return config.GetConfigPath()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	path, err := configFilePath()
	if err != nil {
		return out.Fail("config.show", err)
	}
	return out.WriteSuccess("config.show", configView{Path: path, Config: appConfig})
}

// runConfigSet edits the file layer only, so environment and flag values in
// effect for this invocation are not persisted.
func runConfigSet(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	key, value := strings.ToLower(args[0]), args[1]

	path, err := configFilePath()
	if err != nil {
		return out.Fail("config.set", err)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return out.Fail("config.set", err)
	}

	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, invalidArgument(key + " must be an integer")
		}
		return n, nil
	}
	switch key {
	case "site_id":
		cfg.SiteID = value
	case "api_base":
		cfg.APIBase = value
	case "digest":
		cfg.Digest = value
	case "symlinks":
		cfg.Symlinks = value
	case "log_level":
		cfg.LogLevel = value
	case "output":
		cfg.OutputFormat = types.OutputFormat(value)
	case "exclude":
		cfg.Exclude = nil
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Exclude = append(cfg.Exclude, p)
			}
		}
	case "common_excludes", "digest_cache":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return out.Fail("config.set", invalidArgument(key+" must be true or false"))
		}
		if key == "digest_cache" {
			cfg.DigestCache = b
		} else {
			cfg.CommonExcludes = b
		}
	case "concurrency", "max_retries", "retry_base_delay", "request_timeout":
		n, err := atoi()
		if err != nil {
			return out.Fail("config.set", err)
		}
		switch key {
		case "concurrency":
			cfg.Concurrency = n
		case "max_retries":
			cfg.MaxRetries = n
		case "retry_base_delay":
			cfg.RetryBaseDelay = n
		default:
			cfg.RequestTimeout = n
		}
	default:
		return out.Fail("config.set", invalidArgument("Unknown configuration key: "+args[0]))
	}

	if err := cfg.Save(path); err != nil {
		return out.Fail("config.set", invalidArgument(err.Error()))
	}

	out.Log("Configuration updated: %s = %s", key, value)
	return out.WriteSuccess("config.set", map[string]string{
		"key":   key,
		"value": value,
	})
}
