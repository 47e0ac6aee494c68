// Package setup defines the contract between plugin authors and the setup
// processor.
//
// A PluginSetup prepares installations, updates and uninstallations. It
// deploys (or points at) the plugin instance and reports the helpers and
// permission changes the processor must apply. It never applies permissions
// itself.
package setup
