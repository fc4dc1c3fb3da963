package session

import "strings"

// State is derived from the stored pair and the clock on every check.
type State int

const (
	NoSession State = iota
	ValidSession
	ExpiredSession
)

func (s State) String() string {
	switch s {
	case ValidSession:
		return "valid"
	case ExpiredSession:
		return "expired"
	default:
		return "none"
	}
}

// RouteClass is the policy class of a navigation target.
type RouteClass int

const (
	RouteOther RouteClass = iota
	RoutePublic
	RouteProtected
	RouteRoot
)

func (r RouteClass) String() string {
	switch r {
	case RoutePublic:
		return "public"
	case RouteProtected:
		return "protected"
	case RouteRoot:
		return "root"
	default:
		return "other"
	}
}

// Policy maps view paths to classes. A path matches a prefix when it equals it
// or continues with "/".
type Policy struct {
	LoginPath   string
	LandingPath string
	Public      []string
	Protected   []string
}

func DefaultPolicy() Policy {
	return Policy{
		LoginPath:   "/login",
		LandingPath: "/dashboard",
		Public:      []string{"/login"},
		Protected:   []string{"/dashboard", "/settings", "/reports", "/jobs", "/monitoring"},
	}
}

// WithPaths overrides the login and landing views, keeping them classified.
// A path already covered by its class is not added again.
func (p Policy) WithPaths(login, landing string) Policy {
	if login != "" && login != p.LoginPath {
		if !matchAny(login, p.Public) {
			p.Public = append([]string{login}, p.Public...)
		}
		p.LoginPath = login
	}
	if landing != "" && landing != p.LandingPath {
		if !matchAny(landing, p.Protected) {
			p.Protected = append([]string{landing}, p.Protected...)
		}
		p.LandingPath = landing
	}
	return p
}

func (p Policy) Classify(path string) RouteClass {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == "/" {
		return RouteRoot
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if matchAny(path, p.Public) {
		return RoutePublic
	}
	if matchAny(path, p.Protected) {
		return RouteProtected
	}
	return RouteOther
}

func matchAny(path string, prefixes []string) bool {
	for _, pre := range prefixes {
		if path == pre || strings.HasPrefix(path, pre+"/") {
			return true
		}
	}
	return false
}

// Decision is the outcome of a navigation check. An empty Redirect allows it.
type Decision struct {
	Class    RouteClass
	Redirect string
	// Clear is set when the stored pair was found expired and must be dropped.
	Clear bool
}

func (d Decision) Allowed() bool { return d.Redirect == "" }

// Decide applies the navigation table. ExpiredSession is treated as
// NoSession and additionally asks for the stored pair to be cleared.
func (p Policy) Decide(state State, path string) Decision {
	d := Decision{Class: p.Classify(path), Clear: state == ExpiredSession}
	valid := state == ValidSession
	switch d.Class {
	case RouteProtected:
		if !valid {
			d.Redirect = p.LoginPath
		}
	case RoutePublic:
		if valid {
			d.Redirect = p.LandingPath
		}
	case RouteRoot:
		if valid {
			d.Redirect = p.LandingPath
		} else {
			d.Redirect = p.LoginPath
		}
	}
	return d
}
