package bibconfig

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

// xmlRoot and friends mirror the BIB/UUT/port XML wire schema closely
// enough for encoding/xml's struct-tag decoding; they are converted to the
// domain types (BibDefinition etc.) by Parse.
type xmlRoot struct {
	XMLName xml.Name   `xml:"root"`
	Bibs    []xmlBib   `xml:"bib"`
}

type xmlBib struct {
	ID          string        `xml:"id,attr"`
	Description string        `xml:"description,attr"`
	Metadata    xmlMetadata   `xml:"metadata"`
	Uuts        []xmlUut      `xml:"uut"`
}

type xmlMetadata struct {
	Entries []xmlMetadataEntry `xml:",any"`
}

type xmlMetadataEntry struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type xmlUut struct {
	ID    string    `xml:"id,attr"`
	Ports []xmlPort `xml:"port"`
}

type xmlPort struct {
	Number        int              `xml:"number,attr"`
	Protocol      string           `xml:"protocol"`
	Speed         int              `xml:"speed"`
	DataPattern   string           `xml:"data_pattern"`
	ReadTimeoutMs int              `xml:"read_timeout"`
	Settings      []xmlSettingEntry `xml:",any"`
	Start         xmlSequence      `xml:"start"`
	Test          xmlSequence      `xml:"test"`
	Stop          xmlSequence      `xml:"stop"`
}

// xmlSettingEntry captures the protocol-specific settings bag: any child
// element of <port> not otherwise named above is treated as a key/value
// setting (key = element name, value = character data).
type xmlSettingEntry struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type xmlSequence struct {
	Commands []xmlCommand `xml:"command"`
}

type xmlCommand struct {
	Text             string                `xml:",chardata"`
	ExpectedResponse *xmlExpectedResponse  `xml:"expected_response"`
	TimeoutMs        int                   `xml:"timeout_ms"`
	RetryCount       int                   `xml:"retry_count"`
}

type xmlExpectedResponse struct {
	Regex   bool   `xml:"regex,attr"`
	Options string `xml:"options,attr"`
	Text    string `xml:",chardata"`
}

// knownPortElements are <port> child elements decoded into dedicated
// struct fields; anything else falls into Settings.
var knownPortElements = map[string]bool{
	"protocol": true, "speed": true, "data_pattern": true,
	"read_timeout": true, "start": true, "test": true, "stop": true,
}

// Parse decodes one XML configuration file's contents into a ConfigRoot.
// Both a multi-BIB <root> document and a single <bib> root are accepted.
func Parse(data []byte) (*ConfigRoot, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("empty configuration document")
	}

	var root xmlRoot
	if err := xml.Unmarshal(data, &root); err == nil && len(root.Bibs) > 0 {
		return convertRoot(root)
	}

	// Fall back to a single <bib> as the document root.
	var bib xmlBib
	if err := xml.Unmarshal(data, &bib); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	converted, err := convertBib(bib)
	if err != nil {
		return nil, err
	}
	return &ConfigRoot{Bibs: []BibDefinition{converted}}, nil
}

func convertRoot(root xmlRoot) (*ConfigRoot, error) {
	out := &ConfigRoot{Bibs: make([]BibDefinition, 0, len(root.Bibs))}
	for _, b := range root.Bibs {
		converted, err := convertBib(b)
		if err != nil {
			return nil, err
		}
		out.Bibs = append(out.Bibs, converted)
	}
	return out, nil
}

func convertBib(b xmlBib) (BibDefinition, error) {
	metadata := make(map[string]string, len(b.Metadata.Entries))
	for _, e := range b.Metadata.Entries {
		metadata[e.XMLName.Local] = strings.TrimSpace(e.Value)
	}

	bib := BibDefinition{
		ID:          b.ID,
		Description: b.Description,
		Metadata:    metadata,
		Uuts:        make([]UutDefinition, 0, len(b.Uuts)),
	}

	for _, u := range b.Uuts {
		uut := UutDefinition{ID: u.ID, Ports: make([]PortDefinition, 0, len(u.Ports))}
		for _, p := range u.Ports {
			port, err := convertPort(p)
			if err != nil {
				return BibDefinition{}, err
			}
			uut.Ports = append(uut.Ports, port)
		}
		bib.Uuts = append(bib.Uuts, uut)
	}

	return bib, nil
}

func convertPort(p xmlPort) (PortDefinition, error) {
	settings := make(map[string]string)
	for _, s := range p.Settings {
		if knownPortElements[s.XMLName.Local] {
			continue
		}
		settings[s.XMLName.Local] = strings.TrimSpace(s.Value)
	}

	port := PortDefinition{
		Number:        p.Number,
		Protocol:      strings.ToLower(strings.TrimSpace(p.Protocol)),
		Speed:         p.Speed,
		DataPattern:   p.DataPattern,
		ReadTimeoutMs: p.ReadTimeoutMs,
		Settings:      settings,
	}

	var err error
	if port.StartCommands, err = convertSequence(p.Start); err != nil {
		return PortDefinition{}, err
	}
	if port.TestCommands, err = convertSequence(p.Test); err != nil {
		return PortDefinition{}, err
	}
	if port.StopCommands, err = convertSequence(p.Stop); err != nil {
		return PortDefinition{}, err
	}

	return port, nil
}

func convertSequence(seq xmlSequence) (CommandSequence, error) {
	out := make(CommandSequence, 0, len(seq.Commands))
	for _, c := range seq.Commands {
		cmd := CommandDefinition{
			Command:    strings.TrimSpace(c.Text),
			TimeoutMs:  c.TimeoutMs,
			RetryCount: c.RetryCount,
		}

		if c.ExpectedResponse != nil {
			cmd.ExpectedResponse = c.ExpectedResponse.Text
			cmd.IsRegex = c.ExpectedResponse.Regex
			cmd.RegexOptions = parseRegexOptions(c.ExpectedResponse.Options)
		}

		if cmd.IsRegex && cmd.ExpectedResponse != "" {
			pattern := applyRegexOptions(translateNamedGroups(cmd.ExpectedResponse), cmd.RegexOptions)
			compiled, compileErr := regexp.Compile(pattern)
			if compileErr != nil {
				// A compile failure is recorded on the definition, not
				// surfaced as a load-time fault. The command falls back to
				// literal matching at run time.
				cmd.RegexValidationError = compileErr.Error()
			} else {
				cmd.compiled = compiled
			}
		}

		out = append(out, cmd)
	}
	return out, nil
}

// dotNetNamedGroup matches .NET/Perl-style named capture groups
// (?<name>...), which spec.md §8's example patterns are written in. Go's
// regexp package only accepts the (?P<name>...) spelling; lookaround forms
// such as (?<=...) and (?<!...) start with a non-identifier character and
// are left untouched.
var dotNetNamedGroup = regexp.MustCompile(`\(\?<([A-Za-z_][A-Za-z0-9_]*)>`)

// translateNamedGroups rewrites .NET/Perl-style named groups to the Go
// regexp spelling so patterns written against spec.md §8's documented
// syntax (e.g. `^OK\s+(?<code>\d+)$`) compile instead of falling back to
// RegexValidationError.
func translateNamedGroups(pattern string) string {
	return dotNetNamedGroup.ReplaceAllString(pattern, "(?P<$1>")
}

// parseRegexOptions splits the comma-separated `options` attribute,
// recognizing both long and short spellings case-insensitively. Unknown
// names are dropped silently; neither Parse nor Validate reports them.
func parseRegexOptions(raw string) []RegexOption {
	if raw == "" {
		return nil
	}
	var opts []RegexOption
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if opt, ok := knownRegexOptions[part]; ok {
			opts = append(opts, opt)
		}
	}
	return opts
}

// applyRegexOptions translates RegexOptions into Go regexp inline flags
// (e.g. "(?im)pattern"). Go's regexp/RE2 has no direct equivalent of
// Compiled or ExplicitCapture; those are accepted but have no runtime
// effect beyond recognition.
func applyRegexOptions(pattern string, opts []RegexOption) string {
	var flags strings.Builder
	for _, o := range opts {
		switch o {
		case OptionIgnoreCase:
			flags.WriteByte('i')
		case OptionMultiline:
			flags.WriteByte('m')
		case OptionSingleline:
			flags.WriteByte('s')
		}
	}
	if flags.Len() == 0 {
		return pattern
	}
	return "(?" + flags.String() + ")" + pattern
}

// UnknownRegexOptionNames returns the raw option tokens in a comma-separated
// options attribute that did not match any known RegexOption. Parse and
// Validate do not call it.
func UnknownRegexOptionNames(raw string) []string {
	if raw == "" {
		return nil
	}
	var unknown []string
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if _, ok := knownRegexOptions[strings.ToLower(trimmed)]; !ok {
			unknown = append(unknown, trimmed)
		}
	}
	return unknown
}
