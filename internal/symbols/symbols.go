// Package symbols defines extracted symbols and the searchable symbol index.
package symbols

import "strings"

// Type is the syntactic kind of a symbol.
type Type string

const (
	Function  Type = "function"
	Method    Type = "method"
	Struct    Type = "struct"
	Class     Type = "class"
	Interface Type = "interface"
	Enum      Type = "enum"
	Variable  Type = "variable"
	Constant  Type = "constant"
	Module    Type = "module"
	Namespace Type = "namespace"
	TypeAlias Type = "type"
	Trait     Type = "trait"
	Unknown   Type = "unknown"
)

// AllTypes lists every symbol type in declaration order.
var AllTypes = []Type{
	Function, Method, Struct, Class, Interface, Enum, Variable,
	Constant, Module, Namespace, TypeAlias, Trait, Unknown,
}

// ParseType maps a name such as "function" or "Function" to a Type.
func ParseType(s string) (Type, bool) {
	for _, t := range AllTypes {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return Unknown, false
}

// Visibility is the declared access level of a symbol.
type Visibility string

const (
	Public            Visibility = "public"
	Private           Visibility = "private"
	Protected         Visibility = "protected"
	Internal          Visibility = "internal"
	VisibilityUnknown Visibility = "unknown"
)

// Reference is a use site of a symbol.
type Reference struct {
	FilePath string `json:"file_path" yaml:"file_path"`
	Line     int    `json:"line" yaml:"line"`
	Column   int    `json:"column" yaml:"column"`
}

// Symbol is a named definition site. Line and Column are 1-based.
type Symbol struct {
	Name          string      `json:"name" yaml:"name"`
	QualifiedName string      `json:"qualified_name,omitempty" yaml:"qualified_name,omitempty"`
	Type          Type        `json:"type" yaml:"type"`
	FilePath      string      `json:"file_path" yaml:"file_path"`
	Line          int         `json:"line" yaml:"line"`
	Column        int         `json:"column" yaml:"column"`
	Signature     string      `json:"signature,omitempty" yaml:"signature,omitempty"`
	Documentation string      `json:"documentation,omitempty" yaml:"documentation,omitempty"`
	Visibility    Visibility  `json:"visibility" yaml:"visibility"`
	References    []Reference `json:"references,omitempty" yaml:"references,omitempty"`
}
