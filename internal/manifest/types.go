package manifest

// Deployment is a compiled manifest. The same shape is embedded in harness
// scenarios as YAML.
type Deployment struct {
	DAOs       []DAOSpec       `json:"daos,omitempty" yaml:"daos,omitempty"`
	Repos      []RepoSpec      `json:"repos,omitempty" yaml:"repos,omitempty"`
	Installs   []InstallSpec   `json:"installs,omitempty" yaml:"installs,omitempty"`
	Conditions []ConditionSpec `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Grants     []GrantSpec     `json:"grants,omitempty" yaml:"grants,omitempty"`
	Funds      []FundSpec      `json:"funds,omitempty" yaml:"funds,omitempty"`
}

// DAOSpec deploys a DAO owned by Owner.
type DAOSpec struct {
	Name     string `json:"name" yaml:"name"`
	Owner    string `json:"owner" yaml:"owner"`
	Metadata string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	URI      string `json:"uri,omitempty" yaml:"uri,omitempty"`
}

// RepoSpec creates a repo through the registry and publishes Builds in order.
type RepoSpec struct {
	Subdomain  string      `json:"subdomain" yaml:"subdomain"`
	Maintainer string      `json:"maintainer" yaml:"maintainer"`
	Builds     []BuildSpec `json:"builds" yaml:"builds"`
}

// BuildSpec publishes one setup as the next build of Release.
type BuildSpec struct {
	Release         uint8     `json:"release" yaml:"release"`
	Setup           SetupSpec `json:"setup" yaml:"setup"`
	Metadata        string    `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	ReleaseMetadata string    `json:"release_metadata,omitempty" yaml:"release_metadata,omitempty"`
}

// Setup types.
const (
	SetupAdmin = "admin"
	SetupFixed = "fixed"
)

// SetupSpec describes the setup behind a build. A fixed setup deploys a
// simple logic named Logic with build LogicBuild; it grants the plugin
// EXECUTE on the DAO on install and revokes it on uninstall.
type SetupSpec struct {
	Type       string   `json:"type" yaml:"type"`
	Logic      string   `json:"logic,omitempty" yaml:"logic,omitempty"`
	LogicBuild uint16   `json:"logic_build,omitempty" yaml:"logic_build,omitempty"`
	Kind       string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	Helpers    []string `json:"helpers,omitempty" yaml:"helpers,omitempty"`
	// Reuse publishes the setup of an earlier build of the same repo,
	// 1-based, instead of deploying a new one.
	Reuse int `json:"reuse,omitempty" yaml:"reuse,omitempty"`
}

// InstallSpec installs a version of a repo on a DAO. The plugin address is
// bound to Name.
type InstallSpec struct {
	Name    string `json:"name" yaml:"name"`
	DAO     string `json:"dao" yaml:"dao"`
	Repo    string `json:"repo" yaml:"repo"`
	Version string `json:"version" yaml:"version"`
	// Admin is the admin of an admin plugin.
	Admin string `json:"admin,omitempty" yaml:"admin,omitempty"`
	// Data is passed verbatim to other setups.
	Data string `json:"data,omitempty" yaml:"data,omitempty"`
}

// ConditionSpec deploys a permission condition. Exactly one of the
// evaluator fields is set; the combinators refer to conditions declared
// earlier.
type ConditionSpec struct {
	Name    string   `json:"name" yaml:"name"`
	Lua     string   `json:"lua,omitempty" yaml:"lua,omitempty"`
	Callers []string `json:"callers,omitempty" yaml:"callers,omitempty"`
	AllOf   []string `json:"all_of,omitempty" yaml:"all_of,omitempty"`
	AnyOf   []string `json:"any_of,omitempty" yaml:"any_of,omitempty"`
	Not     string   `json:"not,omitempty" yaml:"not,omitempty"`
}

// GrantSpec grants Permission on Where to Who in a DAO's table, guarded by
// Condition when set. The DAO owner sends it.
type GrantSpec struct {
	DAO        string `json:"dao" yaml:"dao"`
	Where      string `json:"where" yaml:"where"`
	Who        string `json:"who" yaml:"who"`
	Permission string `json:"permission" yaml:"permission"`
	Condition  string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// FundSpec mints Amount native tokens to Account.
type FundSpec struct {
	Account string `json:"account" yaml:"account"`
	Amount  uint64 `json:"amount" yaml:"amount"`
}
