// Package tenant resolves the cluster/project/code scoping key used by
// every frame record and every storage path.
package tenant

import (
	"errors"
	"net/url"
	"strings"
)

// Identity is the fully-qualified scoping key for one distribution frame.
type Identity struct {
	Cluster string `json:"cluster"`
	Project string `json:"project"`
	Code    string `json:"code"`
}

func (id Identity) String() string {
	return id.Cluster + "/" + id.Project + "/" + id.Code
}

// ErrUnknownCluster is returned for clusters outside the allow-list. Callers
// surface it as a plain not-found so valid cluster names are not leaked.
var ErrUnknownCluster = errors.New("unknown cluster")

// projectAliases folds every historical spelling of a project name that ever
// appeared in a route to the canonical database value. Unknown projects pass
// through so new tenants need no code change.
var projectAliases = map[string]string{
	"sabinas":         "Sabinas Project",
	"Sabinas":         "Sabinas Project",
	"Sabinas Project": "Sabinas Project",
	"trinity/sabinas": "Sabinas Project",
	"sabinas/trinity": "Sabinas Project",
	"monclova":        "Monclova Project",
	"Monclova":        "Monclova Project",
	"trinity":         "Trinity",
	"Trinity":         "Trinity",
}

// folderNames maps canonical project names to stable, filesystem-legal
// storage segments. These must never change even if the display name does,
// or existing media paths break.
var folderNames = map[string]string{
	"Sabinas Project":  "sabinas",
	"Monclova Project": "monclova",
	"Trinity":          "trinity",
}

// Resolver maps raw route values to canonical tenant identities.
type Resolver struct {
	clusters map[string]struct{}
}

func NewResolver(allowedClusters []string) *Resolver {
	clusters := make(map[string]struct{}, len(allowedClusters))
	for _, cluster := range allowedClusters {
		clusters[cluster] = struct{}{}
	}
	return &Resolver{clusters: clusters}
}

// Resolve validates the cluster against the allow-list and folds the project
// through the alias table. Pure, no I/O.
func (r *Resolver) Resolve(clusterRaw, projectRaw string) (cluster, project string, err error) {
	if _, ok := r.clusters[clusterRaw]; !ok {
		return "", "", ErrUnknownCluster
	}
	return clusterRaw, CanonicalProject(projectRaw), nil
}

// CanonicalProject URL-decodes a route project segment and maps historical
// aliases to the canonical name.
func CanonicalProject(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if canonical, ok := projectAliases[decoded]; ok {
		return canonical
	}
	return decoded
}

// FolderName returns the on-disk segment for a canonical project name.
func FolderName(project string) string {
	if folder, ok := folderNames[project]; ok {
		return folder
	}
	return strings.ReplaceAll(strings.ToLower(project), " ", "-")
}
