package dlp

import (
	"regexp"

	domdlp "github.com/kailas-cloud/aegis/internal/domain/dlp"
)

// structuralConfidence is assigned to every structural match.
const structuralConfidence = 0.95

type structuralPattern struct {
	name     string
	re       *regexp.Regexp
	dataType domdlp.DataType
}

// structuralPatterns detect credential shapes without any model. Order is fixed.
var structuralPatterns = []structuralPattern{
	{
		name:     "jwt",
		re:       regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
		dataType: domdlp.CredentialToken,
	},
	{
		name:     "private_key",
		re:       regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
		dataType: domdlp.CredentialSecret,
	},
	{
		name:     "certificate",
		re:       regexp.MustCompile(`-----BEGIN CERTIFICATE-----`),
		dataType: domdlp.CredentialSecret,
	},
	{
		name:     "connection_string",
		re:       regexp.MustCompile(`(?:mongodb|postgresql|mysql|redis)://\S+`),
		dataType: domdlp.CredentialSecret,
	},
	{
		name:     "aws_secret",
		re:       regexp.MustCompile(`(?i)aws[_\-]?secret[_\-]?access[_\-]?key['"]?\s*[:=]\s*['"]?[a-zA-Z0-9/+=]{40}`),
		dataType: domdlp.CredentialAPIKey,
	},
}

func structuralFindings(text string) []domdlp.Finding {
	var out []domdlp.Finding
	for _, p := range structuralPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			out = append(out, domdlp.Finding{
				DataType:     p.dataType,
				Confidence:   structuralConfidence,
				Span:         domdlp.Span{Start: loc[0], End: loc[1]},
				MatchedText:  text[loc[0]:loc[1]],
				RedactedText: p.dataType.Label(),
				Action:       domdlp.ActionBlock,
				Source:       domdlp.SourceStructural,
				Pattern:      p.name,
			})
		}
	}
	return out
}
