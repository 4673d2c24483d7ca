// Package authz provides an implemention of http authorization where specific
// URI (or URI's and their children) are allowed access by a set of roles
//
// the access control points are on entire URI segments only, e.g.
// Allow("/foo/bar", "bob")
// gives access to /foo/bar /foo/bar/baz, but not /foo/barry
//
// Access is based on the deepest matching path, not the accumulated paths, so,
// Allow("/foo", "bob")
// Allow("/foo/bar", "barry")
// will allow barry access to /foo/bar but not access to /foo
//
// AllowAny("/foo") will allow any request access to the /foo resource
// AllowAnyRole("/bar") will allow any request with a non-guest role access
// to the /bar resource
//
// A caller is allowed access either by its effective role or by any entry
// of its mapped authority set.
package authz

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/effective-security/xlog"
	"github.com/jinzhu/copier"
	"github.com/pkg/errors"

	"github.com/fitpulse/gateway/xhttp/httperror"
	"github.com/fitpulse/gateway/xhttp/identity"
	"github.com/fitpulse/gateway/xhttp/marshal"
)

var logger = xlog.NewPackageLogger("github.com/fitpulse/gateway/gateway", "authz")

var (
	// ErrNoPathsConfigured is returned by NewHandler when no paths were configured
	ErrNoPathsConfigured = errors.New("you must have at least one path before being able to create a http.Handler")
)

// Config contains configuration for the authorization module
type Config struct {
	// Allow will allow the specified roles access to this path and its children, in format: ${path}:${role},${role}
	Allow []string `json:"allow" yaml:"allow"`

	// AllowAny will allow any request access to this path and its children
	AllowAny []string `json:"allow_any" yaml:"allow_any"`

	// AllowAnyRole will allow any request that includes a non-guest role
	AllowAnyRole []string `json:"allow_any_role" yaml:"allow_any_role"`

	// LogAllowedAny specifies to log allowed access to nodes in AllowAny list
	LogAllowedAny bool `json:"log_allowed_any" yaml:"log_allowed_any"`

	// LogAllowed specifies to log allowed access
	LogAllowed bool `json:"log_allowed" yaml:"log_allowed"`

	// LogDenied specifies to log denied access
	LogDenied bool `json:"log_denied" yaml:"log_denied"`
}

// Provider represents an Authorization provider.
// You can call Allow or AllowAny to specify which roles are allowed
// access to which path segments.
// Once configured you can create a http.Handler that enforces that
// configuration for you by calling NewHandler
type Provider struct {
	identityMapper func(*http.Request) identity.Identity
	pathRoot       *pathNode
	cfg            *Config
}

type allowTypes int8

const (
	allowAny allowTypes = 1 << iota
	allowAnyRole
)

// the auth info is stored in a tree based on the path segments,
// the deepest node that matches the request is used to validate the request
type pathNode struct {
	value        string
	children     map[string]*pathNode
	allowedRoles map[string]bool
	allow        allowTypes
}

var defaultIdentityMapper = func(r *http.Request) identity.Identity {
	return identity.FromRequest(r).Identity()
}

// New returns new Authz provider
func New(cfg *Config) (*Provider, error) {
	az := &Provider{
		cfg:            cfg,
		identityMapper: defaultIdentityMapper,
	}

	for _, s := range cfg.AllowAny {
		az.AllowAny(s)
		logger.KV(xlog.NOTICE, "AllowAny", s)
	}

	for _, s := range cfg.AllowAnyRole {
		az.AllowAnyRole(s)
		logger.KV(xlog.NOTICE, "AllowAnyRole", s)
	}

	for _, s := range cfg.Allow {
		parts := strings.Split(s, ":")
		if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) == 0 {
			return nil, errors.Errorf("not valid Authz allow configuration: %q", s)
		}
		logger.KV(xlog.NOTICE, "allow", parts[0], "role", parts[1])
		roles := strings.Split(parts[1], ",")
		az.Allow(parts[0], roles...)
	}

	return az, nil
}

// treeAsText will return a string of the current configured tree in
// human readable text format.
func (c *Provider) treeAsText() string {
	o := bytes.NewBuffer(make([]byte, 0, 256))
	_, _ = io.WriteString(o, "\n")
	roles := func(o io.Writer, n *pathNode) {
		if n.allowAny() {
			_, _ = io.WriteString(o, "[Any]")
			return
		}
		if (n.allow & allowAnyRole) != 0 {
			_, _ = io.WriteString(o, "[Any Role]")
			return
		}
		if len(n.allowedRoles) == 0 {
			return
		}
		fmt.Fprintf(o, "[%s]", strings.Join(n.allowedRoleKeys(), ","))
	}
	var visitNode func(int, *pathNode)
	visitNode = func(depth int, n *pathNode) {
		pad := strings.Repeat(" ", depth*2)
		slash := ""
		if len(n.children) > 0 {
			slash = "/"
		}
		rolePad := strings.Repeat(" ", max(1, 32-len(pad)-len(slash)-len(n.value)))
		fmt.Fprintf(o, "%s  %s%s %s", pad, n.value, slash, rolePad)
		roles(o, n)
		fmt.Fprintln(o)
		for _, ck := range n.childKeys() {
			visitNode(depth+1, n.children[ck])
		}
	}
	visitNode(0, c.pathRoot)
	return o.String()
}

// newPathNode returns a newly created pathNode initialized with the supplied path segment
func newPathNode(pathItem string) *pathNode {
	return &pathNode{
		value:        pathItem,
		children:     make(map[string]*pathNode),
		allowedRoles: make(map[string]bool),
	}
}

// childKeys returns a slice containing the child key names sorted alpabetically
func (n *pathNode) childKeys() []string {
	r := make([]string, 0, len(n.children))
	for k := range n.children {
		r = append(r, k)
	}
	sort.Strings(r)
	return r
}

// allowedRoleKeys return a slice containing the allowed role name sorted alphabetically
func (n *pathNode) allowedRoleKeys() []string {
	r := make([]string, 0, len(n.allowedRoles))
	for k := range n.allowedRoles {
		r = append(r, k)
	}
	sort.Strings(r)
	return r
}

// clone returns a deep copy of this pathNode
func (n *pathNode) clone() *pathNode {
	if n == nil {
		return nil
	}
	c := newPathNode(n.value)
	c.allow = n.allow
	for k, v := range n.children {
		c.children[k] = v.clone()
	}
	for k := range n.allowedRoles {
		c.allowedRoles[k] = true
	}
	return c
}

func (n *pathNode) allowAny() bool {
	return (n.allow & allowAny) != 0
}

func (n *pathNode) allowIdentity(idn identity.Identity) bool {
	role := idn.Role()
	if role == "" || role == identity.GuestRoleName {
		return false
	}
	if (n.allow&allowAnyRole) != 0 || n.allowedRoles[role] {
		return true
	}
	for _, authority := range idn.Roles() {
		if n.allowedRoles[authority] {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of this Provider
func (c *Provider) Clone() *Provider {
	p := &Provider{
		identityMapper: c.identityMapper,
		pathRoot:       c.pathRoot.clone(),
		cfg:            &Config{},
	}

	_ = copier.Copy(p.cfg, c.cfg)

	return p
}

// SetIdentityMapper configures the function that provides the mapping
// from an HTTP request to an identity
func (c *Provider) SetIdentityMapper(m func(r *http.Request) identity.Identity) {
	c.identityMapper = m
}

// AllowAny will allow any request access to this path and its children
// [unless a specific Allow/AllowAny is called for a child path]
func (c *Provider) AllowAny(path string) {
	c.walkPath(path, true).allow = allowAny
}

// AllowAnyRole will allow any request that includes a non-guest role
// access to this path and its children
// [unless a specific Allow/AllowAny is called for a child path]
func (c *Provider) AllowAnyRole(path string) {
	c.walkPath(path, true).allow |= allowAnyRole
}

// Allow will allow the specified roles access to this path and its children
// [unless a specific Allow/AllowAny is called for a child path]
// multiple calls to Allow for the same path are cumulative
func (c *Provider) Allow(path string, roles ...string) {
	node := c.walkPath(path, true)
	for _, role := range roles {
		if role == "" {
			continue
		}
		node.allowedRoles[role] = true
	}
}

// walkPath does the work of converting a URI path into a tree of pathNodes
// if create is true, all nodes required to create a tree equaling the supplied
// path will be created if needed.
// if create is false, the deepest node matching the supplied path is returned.
//
// walkPath is safe for concurrent use only if create is false, and it has previously
// been called with create=true
func (c *Provider) walkPath(path string, create bool) *pathNode {
	if len(path) == 0 || path[0] != '/' {
		panic(fmt.Sprintf("Invalid path supplied to walkPath %v", path))
	}
	if c.pathRoot == nil {
		c.pathRoot = newPathNode("")
	}
	pathLen := len(path)
	pathPos := 1
	currentNode := c.pathRoot
	for pathPos < pathLen {
		segEnd := pathPos
		for segEnd < pathLen && path[segEnd] != '/' {
			segEnd++
		}
		pathSegment := path[pathPos:segEnd]
		childNode := currentNode.children[pathSegment]
		if childNode == nil && !create {
			return currentNode
		}
		if childNode == nil {
			childNode = newPathNode(pathSegment)
			currentNode.children[pathSegment] = childNode
		}
		currentNode = childNode
		pathPos = segEnd + 1
	}
	return currentNode
}

// isAllowed returns true if access to 'path' is allowed for the identity.
func (c *Provider) isAllowed(path string, idn identity.Identity) bool {
	role := idn.Role()
	subj := idn.Subject()

	if len(path) == 0 || path[0] != '/' {
		logger.KV(xlog.NOTICE, "status", "denied",
			"invalid_path", path,
			"role", role,
			"user", subj)
		return false
	}

	node := c.walkPath(path, false)
	anyAllowed := node.allowAny()
	roleAllowed := false

	if !anyAllowed {
		roleAllowed = node.allowIdentity(idn)
	}
	res := anyAllowed || roleAllowed
	if res {
		if roleAllowed && c.cfg.LogAllowed {
			logger.KV(xlog.NOTICE, "status", "allowed",
				"role", role,
				"user", subj,
				"path", path,
				"node", node.value)
		} else if c.cfg.LogAllowedAny {
			logger.KV(xlog.NOTICE, "status", "allowed_any",
				"role", role,
				"user", subj,
				"path", path,
				"node", node.value)
		}
	} else if c.cfg.LogDenied {
		logger.KV(xlog.NOTICE, "status", "denied",
			"role", role,
			"user", subj,
			"path", path,
			"node", node.value)
	}
	return res
}

// checkAccess ensures that access to the supplied http.request is allowed
func (c *Provider) checkAccess(r *http.Request) error {
	if r.Method == http.MethodOptions {
		// always allow OPTIONS
		return nil
	}

	idn := c.identityMapper(r)
	if !c.isAllowed(r.URL.Path, idn) {
		return errors.Errorf("%s role not allowed", idn.String())
	}

	return nil
}

// NewHandler returns a http.Handler that enforces the current authorization configuration.
// The handler has its own copy of the configuration, changes to the Provider after calling
// NewHandler won't affect previously created Handlers.
// The returned handler will extract the identity and verify that it has access to the
// URI being requested, and either return an error, or pass the request on to the supplied
// delegate handler
func (c *Provider) NewHandler(delegate http.Handler) (http.Handler, error) {
	if c.pathRoot == nil {
		return nil, errors.WithStack(ErrNoPathsConfigured)
	}
	h := &authHandler{
		delegate: delegate,
		config:   c.Clone(),
	}
	logger.KV(xlog.INFO, "config", h.config.treeAsText())
	return h, nil
}

type authHandler struct {
	delegate http.Handler
	config   *Provider
}

func (a *authHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := a.config.checkAccess(r)
	if err == nil {
		a.delegate.ServeHTTP(w, r)
	} else {
		marshal.WriteJSON(w, r, httperror.Unauthorized("%s", err.Error()))
	}
}
