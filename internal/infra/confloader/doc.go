// Package confloader provides configuration loading mechanism.
//
// Loader merges configuration sources with koanf and unmarshals them into
// typed structs. Priority (highest to lowest):
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (TIMEMACHINE_ prefix, "__" between levels)
//  3. YAML configuration file
//  4. Defaults
//
// Watcher reports changes to a configuration file through fsnotify so the
// daemon can reload settings such as the log level without a restart.
package confloader
