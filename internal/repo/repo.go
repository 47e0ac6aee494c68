package repo

import (
	"encoding/hex"
	"maps"
	"math"
	"strconv"

	"github.com/roach88/govkit/internal/ir"
	"github.com/roach88/govkit/internal/ledger"
	"github.com/roach88/govkit/internal/permission"
	"github.com/roach88/govkit/internal/setup"
)

// Permission ids checked by a repo.
var (
	MaintainerPermissionID  = ir.NewPermissionID("MAINTAINER_PERMISSION")
	UpgradeRepoPermissionID = ir.NewPermissionID("UPGRADE_REPO_PERMISSION")
)

// Version is one published build.
type Version struct {
	Tag           ir.VersionTag `json:"tag"`
	PluginSetup   ir.Address    `json:"plugin_setup"`
	BuildMetadata []byte        `json:"build_metadata"`
}

// Repo is a plugin repository.
type Repo struct {
	*permission.Manager

	addr   ir.Address
	ledger *ledger.Ledger

	latestRelease    uint8
	buildsPerRelease map[uint8]uint16
	versions         map[ir.Hash]Version
	latestBySetup    map[ir.Address]ir.Hash
	releaseMetadata  map[uint8][]byte
}

// New creates a repo at addr and grants ROOT, MAINTAINER and UPGRADE_REPO on
// it to initialOwner.
func New(l *ledger.Ledger, addr, initialOwner ir.Address) *Repo {
	r := &Repo{
		addr:             addr,
		ledger:           l,
		buildsPerRelease: make(map[uint8]uint16),
		versions:         make(map[ir.Hash]Version),
		latestBySetup:    make(map[ir.Address]ir.Hash),
		releaseMetadata:  make(map[uint8][]byte),
	}
	r.Manager = permission.New(addr, initialOwner,
		permission.WithEventSink(l),
		permission.WithConditionResolver(l),
	)
	if !initialOwner.IsZero() {
		// The owner holds ROOT, so these cannot fail.
		_ = r.Grant(initialOwner, addr, initialOwner, MaintainerPermissionID)
		_ = r.Grant(initialOwner, addr, initialOwner, UpgradeRepoPermissionID)
	}
	return r
}

// Deploy creates a repo at the next address of deployer and registers it.
func Deploy(l *ledger.Ledger, deployer, initialOwner ir.Address) (*Repo, error) {
	return ledger.Deploy(l, deployer, func(addr ir.Address) (*Repo, error) {
		return New(l, addr, initialOwner), nil
	})
}

// Address implements ledger.Account.
func (r *Repo) Address() ir.Address {
	return r.addr
}

// CreateVersion publishes setupAddr as the next build of release. Requires
// MAINTAINER_PERMISSION on the repo.
func (r *Repo) CreateVersion(caller ir.Address, release uint8, setupAddr ir.Address, buildMetadata, releaseMetadata []byte) (ir.VersionTag, error) {
	if !r.IsGranted(r.addr, caller, MaintainerPermissionID, nil) {
		return ir.VersionTag{}, permission.ErrUnauthorized(r.addr, caller, MaintainerPermissionID)
	}
	if _, err := setup.Resolve(r.ledger, setupAddr); err != nil {
		return ir.VersionTag{}, err
	}
	if release == 0 {
		return ir.VersionTag{}, ir.NewError(ir.ErrCodeReleaseZeroNotAllowed, "release 0 is not allowed")
	}
	if release != r.latestRelease && release != r.latestRelease+1 {
		return ir.VersionTag{}, ir.NewError(ir.ErrCodeInvalidReleaseIncrement, "release must be the latest or the next one",
			"latest_release", strconv.Itoa(int(r.latestRelease)),
			"new_release", strconv.Itoa(int(release)),
		)
	}
	if r.buildsPerRelease[release] == math.MaxUint16 {
		return ir.VersionTag{}, ir.NewError(ir.ErrCodeBuildLimitReached, "release has no build numbers left",
			"release", strconv.Itoa(int(release)))
	}
	firstBuild := r.buildsPerRelease[release] == 0
	if firstBuild && len(releaseMetadata) == 0 {
		return ir.VersionTag{}, ir.NewError(ir.ErrCodeEmptyReleaseMetadata, "first build of a release needs release metadata",
			"release", strconv.Itoa(int(release)))
	}
	if prev, ok := r.latestBySetup[setupAddr]; ok {
		v := r.versions[prev]
		if v.Tag.Release != release {
			return ir.VersionTag{}, ir.NewError(ir.ErrCodePluginSetupAlreadyInPreviousRelease, "setup already published in another release",
				"release", strconv.Itoa(int(v.Tag.Release)),
				"build", strconv.Itoa(int(v.Tag.Build)),
				"plugin_setup", setupAddr.String(),
			)
		}
	}

	if release > r.latestRelease {
		r.latestRelease = release
	}
	build := r.buildsPerRelease[release] + 1
	r.buildsPerRelease[release] = build

	tag := ir.VersionTag{Release: release, Build: build}
	h := ir.TagHash(tag)
	r.versions[h] = Version{Tag: tag, PluginSetup: setupAddr, BuildMetadata: buildMetadata}
	r.latestBySetup[setupAddr] = h

	r.emit("VersionCreated", ir.Fields{
		"release":        int(release),
		"build":          int(build),
		"plugin_setup":   setupAddr.String(),
		"build_metadata": hexBytes(buildMetadata),
	})
	if len(releaseMetadata) > 0 {
		r.releaseMetadata[release] = releaseMetadata
		r.emit("ReleaseMetadataUpdated", ir.Fields{
			"release":          int(release),
			"release_metadata": hexBytes(releaseMetadata),
		})
	}
	return tag, nil
}

// UpdateReleaseMetadata replaces the metadata of an existing release.
// Requires MAINTAINER_PERMISSION on the repo.
func (r *Repo) UpdateReleaseMetadata(caller ir.Address, release uint8, metadata []byte) error {
	if !r.IsGranted(r.addr, caller, MaintainerPermissionID, nil) {
		return permission.ErrUnauthorized(r.addr, caller, MaintainerPermissionID)
	}
	if release == 0 {
		return ir.NewError(ir.ErrCodeReleaseZeroNotAllowed, "release 0 is not allowed")
	}
	if release > r.latestRelease {
		return ir.NewError(ir.ErrCodeReleaseDoesNotExist, "release does not exist",
			"release", strconv.Itoa(int(release)))
	}
	if len(metadata) == 0 {
		return ir.NewError(ir.ErrCodeEmptyReleaseMetadata, "release metadata is empty",
			"release", strconv.Itoa(int(release)))
	}
	r.releaseMetadata[release] = metadata
	r.emit("ReleaseMetadataUpdated", ir.Fields{
		"release":          int(release),
		"release_metadata": hexBytes(metadata),
	})
	return nil
}

// GetVersion returns the version published under tag.
func (r *Repo) GetVersion(tag ir.VersionTag) (Version, error) {
	return r.GetVersionByHash(ir.TagHash(tag))
}

// GetVersionByHash returns the version whose tag hashes to h.
func (r *Repo) GetVersionByHash(h ir.Hash) (Version, error) {
	v, ok := r.versions[h]
	if !ok {
		return Version{}, ir.NewError(ir.ErrCodeVersionHashDoesNotExist, "version does not exist",
			"repo", r.addr.String(),
			"version_hash", h.String(),
		)
	}
	return v, nil
}

// GetLatestVersion returns the highest build of release.
func (r *Repo) GetLatestVersion(release uint8) (Version, error) {
	return r.GetVersion(ir.VersionTag{Release: release, Build: r.buildsPerRelease[release]})
}

// GetLatestVersionBySetup returns the highest build that published setupAddr.
func (r *Repo) GetLatestVersionBySetup(setupAddr ir.Address) (Version, error) {
	h, ok := r.latestBySetup[setupAddr]
	if !ok {
		return Version{}, ir.NewError(ir.ErrCodeVersionHashDoesNotExist, "setup was never published",
			"repo", r.addr.String(),
			"plugin_setup", setupAddr.String(),
		)
	}
	return r.GetVersionByHash(h)
}

// BuildCount returns the number of builds in release.
func (r *Repo) BuildCount(release uint8) uint16 {
	return r.buildsPerRelease[release]
}

// LatestRelease returns the highest release, or 0 when nothing is published.
func (r *Repo) LatestRelease() uint8 {
	return r.latestRelease
}

// ReleaseMetadata returns the metadata of release.
func (r *Repo) ReleaseMetadata(release uint8) []byte {
	return r.releaseMetadata[release]
}

// Versions lists every version ordered by tag.
func (r *Repo) Versions() []Version {
	var out []Version
	for rel := uint8(1); rel <= r.latestRelease && rel != 0; rel++ {
		for b := uint16(1); b <= r.buildsPerRelease[rel]; b++ {
			out = append(out, r.versions[ir.TagHash(ir.VersionTag{Release: rel, Build: b})])
		}
	}
	return out
}

// Snapshot implements ledger.Snapshotter.
func (r *Repo) Snapshot() func() {
	restorePerms := r.Manager.Snapshot()
	latest := r.latestRelease
	builds := maps.Clone(r.buildsPerRelease)
	versions := maps.Clone(r.versions)
	bySetup := maps.Clone(r.latestBySetup)
	metadata := maps.Clone(r.releaseMetadata)
	return func() {
		restorePerms()
		r.latestRelease = latest
		r.buildsPerRelease = builds
		r.versions = versions
		r.latestBySetup = bySetup
		r.releaseMetadata = metadata
	}
}

func (r *Repo) emit(name string, fields ir.Fields) {
	r.ledger.Emit(ir.Event{Emitter: r.addr, Name: name, Fields: fields})
}

func hexBytes(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
