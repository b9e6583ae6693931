package db

import "strings"

// LikeEscape is appended after a LIKE operand built by Contains.
const LikeEscape = ` ESCAPE '\'`

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Contains returns a LIKE pattern matching s literally anywhere in a value.
func Contains(s string) string { return "%" + likeReplacer.Replace(s) + "%" }
