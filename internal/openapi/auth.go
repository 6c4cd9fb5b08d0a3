package openapi

import "fmt"

type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
	AuthCustom AuthType = "custom"
)

type AuthLocation string

const (
	AuthInHeader AuthLocation = "header"
	AuthInQuery  AuthLocation = "query"
	AuthInBody   AuthLocation = "body"
)

// Auth describes the credential attached to every request of a tool.
type Auth struct {
	Type     AuthType
	Location AuthLocation
	// HeaderName is the header, query parameter or body field used when
	// Type is custom.
	HeaderName string
	Token      string
}

func (a Auth) validate() error {
	switch a.Type {
	case "", AuthNone, AuthBasic, AuthBearer, AuthCustom:
	default:
		return fmt.Errorf("unknown auth type %q", a.Type)
	}
	switch a.Location {
	case "", AuthInHeader, AuthInQuery, AuthInBody:
	default:
		return fmt.Errorf("unknown auth location %q", a.Location)
	}
	if a.Type == AuthCustom && a.HeaderName == "" && a.Token != "" {
		return fmt.Errorf("custom auth requires a header name")
	}
	return nil
}

// name is the header, query parameter or body field carrying the token.
func (a Auth) name() string {
	if a.Type == AuthCustom {
		return a.HeaderName
	}
	return "Authorization"
}

func (a Auth) value() string {
	switch a.Type {
	case AuthBasic:
		return "Basic " + a.Token
	case AuthBearer:
		return "Bearer " + a.Token
	}
	return a.Token
}

func (a Auth) location() AuthLocation {
	if a.Location == "" {
		return AuthInHeader
	}
	return a.Location
}

func (a Auth) enabled() bool {
	return a.Token != "" && a.name() != ""
}
