// Package bibconfig parses, validates and caches the XML configuration tree
// that declares BIB/UUT/port definitions and their start/test/stop command
// sequences.
package bibconfig

import "regexp"

// RegexOption is a named option applied when compiling a regex expected
// response (the XML `options` attribute, comma-separated).
type RegexOption string

const (
	OptionIgnoreCase             RegexOption = "IgnoreCase"
	OptionMultiline              RegexOption = "Multiline"
	OptionSingleline             RegexOption = "Singleline"
	OptionExplicitCapture        RegexOption = "ExplicitCapture"
	OptionCompiled               RegexOption = "Compiled"
	OptionIgnorePatternWhitespace RegexOption = "IgnorePatternWhitespace"
)

// knownRegexOptions maps both the long and short option spellings
// (case-insensitive) accepted in the `options` attribute to their
// canonical RegexOption.
var knownRegexOptions = map[string]RegexOption{
	"ignorecase": OptionIgnoreCase, "i": OptionIgnoreCase,
	"multiline": OptionMultiline, "m": OptionMultiline,
	"singleline": OptionSingleline, "s": OptionSingleline,
	"explicitcapture": OptionExplicitCapture, "n": OptionExplicitCapture,
	"compiled": OptionCompiled, "c": OptionCompiled,
	"ignorepatternwhitespace": OptionIgnorePatternWhitespace, "x": OptionIgnorePatternWhitespace,
}

// CommandDefinition is a single command within a start/test/stop sequence.
type CommandDefinition struct {
	Command          string
	ExpectedResponse string
	IsRegex          bool
	RegexOptions     []RegexOption
	TimeoutMs        int
	RetryCount       int

	// RegexValidationError holds the compile error when IsRegex is true but
	// ExpectedResponse does not compile. It is recorded here rather than
	// failing the load, per the fallback-to-literal-match rule.
	RegexValidationError string

	compiled *regexp.Regexp
}

// Compiled returns the compiled regex for a regex-validated command, or nil
// if the command is not regex-validated or failed to compile.
func (c *CommandDefinition) Compiled() *regexp.Regexp {
	return c.compiled
}

// CommandSequence is an ordered list of commands for one workflow phase.
type CommandSequence []CommandDefinition

// PortDefinition declares one logical serial port within a UUT.
type PortDefinition struct {
	Number          int
	Protocol        string
	Speed           int
	DataPattern     string
	ReadTimeoutMs   int
	Settings        map[string]string
	StartCommands   CommandSequence
	TestCommands    CommandSequence
	StopCommands    CommandSequence
}

// UutDefinition declares a unit under test and its logical ports.
type UutDefinition struct {
	ID    string
	Ports []PortDefinition
}

// BibDefinition declares a bench-in-box and its UUTs.
type BibDefinition struct {
	ID          string
	Description string
	Metadata    map[string]string
	Uuts        []UutDefinition
}

// ConfigRoot is the parsed contents of one XML configuration file: either a
// multi-BIB <root> or a single <bib> accepted as root.
type ConfigRoot struct {
	Bibs []BibDefinition
}

// recognizedProtocols is the set of protocol tags treated as known;
// anything else is a validation warning, not an error.
var recognizedProtocols = map[string]bool{
	"rs232": true, "rs485": true, "usb": true, "can": true, "i2c": true, "spi": true,
}

// standardBaudRates is the baud list used for the speed warning check on
// serial protocols.
var standardBaudRates = map[int]bool{
	110: true, 300: true, 600: true, 1200: true, 2400: true, 4800: true,
	9600: true, 14400: true, 19200: true, 38400: true, 57600: true,
	115200: true, 230400: true, 460800: true, 921600: true,
}
