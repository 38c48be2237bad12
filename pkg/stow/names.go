package stow

import (
	"regexp"

	"github.com/wuxler/stowage/pkg/errdefs"
	"github.com/wuxler/stowage/pkg/util/xregexp"
)

var (
	// re compiles the string to a regular expression.
	re         = regexp.MustCompile
	literal    = xregexp.Literal
	expression = xregexp.Expression
	optional   = xregexp.Optional
	anchored   = xregexp.Anchored
	zeroOrMore = xregexp.Any
)

const (
	// nameLeader restricts names to start with a lower case letter.
	nameLeader = `[a-z]`

	// nameBody defines the characters allowed after the leader: lower case
	// letters, digits, underscore, dot and dash.
	nameBody = `[a-z0-9_.-]`

	// version defines the numeric part of the mandatory version suffix.
	version = `\d+`
)

var (
	// namePat matches a component name with its version suffix.
	//
	// Format: name "@v" major [ "." qualifier ]
	//
	// Example: json@v1, file-store@v2.beta
	namePat = expression(
		nameLeader,
		zeroOrMore(nameBody),
		literal(`@v`),
		version,
		optional(literal(`.`), `.*`),
	)

	// NameRegexp matches well-formed component names.
	NameRegexp = re(namePat)

	// AnchoredNameRegexp matches valid component names, anchored at the
	// start and end of the matched string.
	AnchoredNameRegexp = re(anchored(namePat))
)

// ValidateName checks that name is a well-formed component name. Names must
// start with a lower case letter, continue with lower case letters, digits,
// "_", "." or "-", and carry a version suffix like "@v1" or "@v2.draft".
func ValidateName(name string) error {
	if name == "" {
		return errdefs.Newf(errdefs.ErrBadComponentName, "component name is empty")
	}
	if !AnchoredNameRegexp.MatchString(name) {
		return errdefs.Newf(errdefs.ErrBadComponentName,
			"component name %q does not match %q", name, AnchoredNameRegexp.String())
	}
	return nil
}
