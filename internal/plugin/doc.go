// Package plugin models plugin instances installed on a DAO.
//
// A plugin instance is a Proxy: a stable address with its own storage that
// forwards calls to a swappable Logic. Upgradeable proxies can switch logic
// through UpgradeTo and UpgradeToAndCall, which require
// UPGRADE_PLUGIN_PERMISSION on the proxy in the owning DAO's permission table.
package plugin
