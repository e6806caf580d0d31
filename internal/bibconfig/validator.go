package bibconfig

import (
	"fmt"

	"github.com/benchforge/portcore/internal/resolver"
)

// Severity distinguishes a hard failure (the config cannot be loaded) from a
// warning (the config loads, but something about it looks wrong).
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a single validation result attached to a location in the
// configuration tree.
type Finding struct {
	Severity Severity
	Message  string
	BibID    string
	UutID    string
	Port     int
}

func (f Finding) String() string {
	loc := f.BibID
	if f.UutID != "" {
		loc = fmt.Sprintf("%s/%s", loc, f.UutID)
	}
	if f.Port != 0 {
		loc = fmt.Sprintf("%s/port:%d", loc, f.Port)
	}
	if loc == "" {
		return fmt.Sprintf("[%s] %s", f.Severity, f.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Severity, loc, f.Message)
}

// ValidationResult is the outcome of validating a ConfigRoot: Errors make the
// document unusable, Warnings flag things worth a human's attention.
type ValidationResult struct {
	Errors   []Finding
	Warnings []Finding
}

func (r *ValidationResult) addError(msg, bibID, uutID string, port int) {
	r.Errors = append(r.Errors, Finding{Severity: SeverityError, Message: msg, BibID: bibID, UutID: uutID, Port: port})
}

func (r *ValidationResult) addWarning(msg, bibID, uutID string, port int) {
	r.Warnings = append(r.Warnings, Finding{Severity: SeverityWarning, Message: msg, BibID: bibID, UutID: uutID, Port: port})
}

// Valid reports whether the document has no hard errors.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Structural limits the validator warns about: total element count and
// maximum nesting depth. The parser does not track these directly, so
// Validate recomputes an approximate element count from the decoded tree;
// the depth is the fixed depth of the decoded schema (root > bib > uut >
// port > command), which is below the limit, so the depth warning does not
// fire for a decoded document.
const (
	maxRecommendedElements = 1000
	maxRecommendedDepth    = 10
	treeDepth              = 5 // root, bib, uut, port, command
)

// Validate checks a parsed ConfigRoot against the configuration's structural
// and semantic rules. Errors mean the document must not be loaded into the
// store; Warnings are informational only.
func Validate(root *ConfigRoot) *ValidationResult {
	result := &ValidationResult{}

	if root == nil || len(root.Bibs) == 0 {
		result.addError("configuration document contains no <bib> definitions", "", "", 0)
		return result
	}

	seenBibIDs := make(map[string]bool, len(root.Bibs))
	elementCount := 0

	for _, bib := range root.Bibs {
		elementCount++
		validateBib(bib, result)

		if bib.ID == "" {
			continue
		}
		if seenBibIDs[bib.ID] {
			result.addError(fmt.Sprintf("duplicate bib id %q", bib.ID), bib.ID, "", 0)
		}
		seenBibIDs[bib.ID] = true

		for _, uut := range bib.Uuts {
			elementCount++
			for _, port := range uut.Ports {
				elementCount++
				elementCount += len(port.StartCommands) + len(port.TestCommands) + len(port.StopCommands)
			}
		}
	}

	if elementCount > maxRecommendedElements {
		result.addWarning(fmt.Sprintf("configuration has %d elements, exceeding the recommended %d", elementCount, maxRecommendedElements), "", "", 0)
	}
	if treeDepth > maxRecommendedDepth {
		result.addWarning("configuration nesting exceeds the recommended depth", "", "", 0)
	}

	return result
}

func validateBib(bib BibDefinition, result *ValidationResult) {
	if bib.ID == "" {
		result.addError("bib id must not be empty", "", "", 0)
	} else if !resolver.IsValidBibID(bib.ID) {
		// The same path-safety check internal/resolver applies to a bib id
		// decoded from an EEPROM descriptor; an XML-declared id must pass it
		// too, since both feed the same "BIB_"+bibID directory construction
		// in internal/runlog.
		result.addError(fmt.Sprintf("bib id %q is not a safe path component (must be 3-50 chars of [A-Za-z0-9_-.])", bib.ID), bib.ID, "", 0)
	}
	if len(bib.Uuts) == 0 {
		result.addError("bib must declare at least one uut", bib.ID, "", 0)
	}

	for _, uut := range bib.Uuts {
		validateUut(bib.ID, uut, result)
	}
}

func validateUut(bibID string, uut UutDefinition, result *ValidationResult) {
	if uut.ID == "" {
		result.addError("uut id must not be empty", bibID, "", 0)
	}
	if len(uut.Ports) == 0 {
		result.addError("uut must declare at least one port", bibID, uut.ID, 0)
	}

	seenPorts := make(map[int]bool, len(uut.Ports))
	for _, port := range uut.Ports {
		if port.Number <= 0 {
			result.addError(fmt.Sprintf("port number %d must be positive", port.Number), bibID, uut.ID, port.Number)
		}
		if seenPorts[port.Number] {
			result.addError(fmt.Sprintf("duplicate port number %d", port.Number), bibID, uut.ID, port.Number)
		}
		seenPorts[port.Number] = true

		validatePort(bibID, uut.ID, port, result)
	}
}

func validatePort(bibID, uutID string, port PortDefinition, result *ValidationResult) {
	if !recognizedProtocols[port.Protocol] {
		result.addWarning(fmt.Sprintf("protocol %q is not a recognized protocol tag", port.Protocol), bibID, uutID, port.Number)
	}

	if port.Protocol == "rs232" || port.Protocol == "rs485" {
		if port.Speed != 0 && !standardBaudRates[port.Speed] {
			result.addWarning(fmt.Sprintf("speed %d is not a standard baud rate", port.Speed), bibID, uutID, port.Number)
		}
	}

	validateSequence(bibID, uutID, port.Number, "start", port.StartCommands, result)
	validateSequence(bibID, uutID, port.Number, "test", port.TestCommands, result)
	validateSequence(bibID, uutID, port.Number, "stop", port.StopCommands, result)
}

func validateSequence(bibID, uutID string, portNumber int, phase string, seq CommandSequence, result *ValidationResult) {
	for i, cmd := range seq {
		if cmd.Command == "" {
			result.addError(fmt.Sprintf("%s command %d has an empty command text", phase, i), bibID, uutID, portNumber)
		}
		if cmd.IsRegex && cmd.RegexValidationError != "" {
			result.addWarning(fmt.Sprintf("%s command %d regex failed to compile, falling back to literal match: %s", phase, i, cmd.RegexValidationError), bibID, uutID, portNumber)
		}
		if cmd.TimeoutMs < 0 {
			result.addError(fmt.Sprintf("%s command %d has a negative timeout", phase, i), bibID, uutID, portNumber)
		}
		if cmd.RetryCount < 0 {
			result.addError(fmt.Sprintf("%s command %d has a negative retry count", phase, i), bibID, uutID, portNumber)
		}
	}
}
