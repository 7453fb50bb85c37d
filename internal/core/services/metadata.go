package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

var (
	newsDatePrefix = regexp.MustCompile(`^(20\d{2})-\d{2}-\d{2}[-_]`)
	yearPattern    = regexp.MustCompile(`20(1\d|2\d)`)
)

// organizationRule maps a lower-case identity-key substring to an organization.
type organizationRule struct {
	keyword      string
	organization string
}

// organizationRules is checked in order and the first match wins. Specific
// keywords precede generic ones; the UAE fallbacks are last on purpose.
var organizationRules = []organizationRule{
	// Consulting
	{"bcg", "BCG"},
	{"mckinsey", "McKinsey"},
	{"deloitte", "Deloitte"},
	{"accenture", "Accenture"},
	{"kpmg", "KPMG"},
	{"ey_", "EY"},
	{"pwc", "PwC"},
	{"capgemini", "Capgemini"},
	{"bain", "Bain & Company"},
	{"cognizant", "Cognizant"},
	{"heidrick", "Heidrick & Struggles"},

	// Technology companies
	{"google", "Google"},
	{"microsoft", "Microsoft"},
	{"amazon", "Amazon"},
	{"aws", "AWS"},
	{"cisco", "Cisco"},
	{"anthropic", "Anthropic"},

	// Think tanks and research institutes
	{"atlantic", "Atlantic Council"},
	{"brookings", "Brookings Institution"},
	{"arxiv", "arXiv"},
	{"ai_now", "AI Now Institute"},
	{"future_of_life", "Future of Life Institute"},
	{"future_of_humanity", "Future of Humanity Institute"},
	{"eon_institute", "Eon Institute"},
	{"fii", "Future Investment Initiative"},
	{"convergence", "Convergence AI"},

	// International organizations
	{"world_bank", "World Bank"},
	{"un_", "United Nations"},
	{"un ", "United Nations"},
	{"imf", "IMF"},
	{"wef", "World Economic Forum"},
	{"oecd", "OECD"},
	{"g7", "G7"},
	{"eu_", "European Union"},
	{"european_parliament", "European Parliament"},
	{"bmz", "BMZ Germany"},
	{"bond", "BOND"},
	{"clad", "CLAD"},
	{"global_solutions", "Global Solutions Initiative"},
	{"nato", "NATO"},
	{"unesco", "UNESCO"},
	{"who", "WHO"},
	{"itc", "International Trade Centre"},

	// UAE entities
	{"dcai", "DCAI"},
	{"dff", "DFF"},
	{"dubai_future", "Dubai Future Foundation"},
	{"dubai_health", "Dubai Health Authority"},
	{"dubai_government", "Dubai Government"},
	{"dubai_state", "Dubai Government"},
	{"digital_dubai", "Digital Dubai"},
	{"mbrsg", "MBRSG"},
	{"abu_dhabi", "Abu Dhabi Government"},

	// Regional organizations
	{"dco", "DCO"},
	{"arab_reform", "Arab Reform Initiative"},
	{"cipit", "CIPIT"},
	{"asia_group", "The Asia Group"},

	// Government agencies
	{"white_house", "US White House"},
	{"dhs", "US DHS"},
	{"dia", "US DIA"},
	{"dod", "US DoD"},
	{"cisa", "US CISA"},
	{"california", "State of California"},
	{"federal", "US Federal Government"},
	{"japan", "Japan Government"},
	{"india_", "India Government"},
	{"house_", "US House of Representatives"},
	{"omb_", "US OMB"},
	{"odni_", "US ODNI"},
	{"qatar", "Qatar Government"},
	{"new_zealand", "New Zealand Government"},

	// Standards bodies
	{"iso_", "ISO"},
	{"itu_", "ITU"},
	{"iea_", "IEA"},

	{"kearney", "Kearney"},
	{"roland_berger", "Roland Berger"},
	{"oliver_wyman", "Oliver Wyman"},

	// Journals
	{"jair_", "JAIR"},
	{"itsa_", "ITSA"},

	// Research and industry
	{"idc", "IDC"},
	{"gartner", "Gartner"},
	{"forrester", "Forrester"},
	{"aaai", "AAAI"},
	{"equalai", "EqualAI"},
	{"appliedai", "AppliedAI"},
	{"cognitivepath", "CognitivePath"},
	{"granicus", "Granicus"},
	{"dentons", "Dentons"},
	{"nist", "NIST"},
	{"ieee", "IEEE"},

	// Universities
	{"mit", "MIT"},
	{"stanford", "Stanford"},
	{"harvard", "Harvard"},
	{"oxford", "Oxford"},
	{"cambridge", "Cambridge"},

	{"openai", "OpenAI"},
	{"meta", "Meta"},
	{"nvidia", "NVIDIA"},
	{"ibm", "IBM"},
	{"salesforce", "Salesforce"},
	{"oracle", "Oracle"},
	{"adobe", "Adobe"},
	{"intel", "Intel"},

	// UAE fallbacks
	{"uae", "UAE Government"},
	{"dubai", "Dubai Government"},
	{"emirates", "UAE Government"},
}

var organizationCategories = map[string]string{}

func init() {
	classes := []struct {
		category string
		orgs     []string
	}{
		{domain.CategoryConsulting, []string{
			"BCG", "McKinsey", "Deloitte", "Accenture", "KPMG", "EY", "PwC",
			"Bain & Company", "Cognizant", "Capgemini", "Heidrick & Struggles",
		}},
		{domain.CategoryPolicy, []string{
			"DCAI", "DFF", "Dubai Government", "UAE Government", "US DHS", "US DIA", "US DoD",
			"US CISA", "Abu Dhabi Government", "Dubai Future Foundation", "Dubai Health Authority",
			"Digital Dubai", "State of California", "US Federal Government",
		}},
		{domain.CategoryThinkTank, []string{
			"Atlantic Council", "Brookings Institution", "AI Now Institute",
			"Future of Life Institute", "Future of Humanity Institute", "Eon Institute",
		}},
		{domain.CategoryNews, []string{"Dubai News", "UAE News", "News Article"}},
		{domain.CategoryAcademic, []string{"arXiv"}},
	}
	for _, c := range classes {
		for _, org := range c.orgs {
			organizationCategories[org] = c.category
		}
	}
}

var (
	policyKeywords = []string{"policy", "regulation", "act", "law", "governance"}
	newsKeywords   = []string{"news", "article", "press"}
)

// InferMetadata derives organization, year and category from a document's
// identity key. It has no side effects and never fails: unmatched keys yield
// "Unknown" and a nil year. The content sample is only consulted for a year
// in the document's top heading when the key carries none.
func InferMetadata(identityKey, contentSample string) domain.ReportMetadata {
	lower := strings.ToLower(identityKey)

	// Date-prefixed keys are news items
	if m := newsDatePrefix.FindStringSubmatch(identityKey); m != nil {
		year, _ := strconv.Atoi(m[1])
		org := "News Article"
		switch {
		case strings.Contains(lower, "dubai"):
			org = "Dubai News"
		case strings.Contains(lower, "uae"), strings.Contains(lower, "emirates"):
			org = "UAE News"
		}
		return domain.ReportMetadata{Organization: org, Year: &year, Category: domain.CategoryNews}
	}

	org := domain.UnknownOrganization
	for _, rule := range organizationRules {
		if strings.Contains(lower, rule.keyword) {
			org = rule.organization
			break
		}
	}

	year := findYear(identityKey)
	if year == nil {
		year = findYear(firstHeading(contentSample))
	}

	return domain.ReportMetadata{
		Organization: org,
		Year:         year,
		Category:     inferCategory(org, lower),
	}
}

func inferCategory(org, lowerKey string) string {
	if c, ok := organizationCategories[org]; ok {
		return c
	}
	if containsAny(lowerKey, policyKeywords) {
		return domain.CategoryPolicy
	}
	if containsAny(lowerKey, newsKeywords) {
		return domain.CategoryNews
	}
	return domain.CategoryResearch
}

func findYear(s string) *int {
	m := yearPattern.FindString(s)
	if m == "" {
		return nil
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &y
}

func firstHeading(content string) string {
	for i, line := range strings.Split(content, "\n") {
		if i >= titleScanLines {
			break
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return line
		}
	}
	return ""
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

const titleScanLines = 20

// ExtractTitle picks the first top-level heading in the opening lines, else
// the first substantial non-heading line, else a cleaned identity key.
func ExtractTitle(content, identityKey string) string {
	for i, line := range strings.Split(content, "\n") {
		if i >= titleScanLines {
			break
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
		if line != "" && !strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "<!--") {
			n := len([]rune(line))
			if n > 10 && n < 200 {
				return line
			}
		}
	}
	return titleCase(strings.NewReplacer("_", " ", "-", " ").Replace(identityKey))
}

// titleCase upper-cases every letter that follows a non-letter and lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	startOfWord := true
	for _, r := range s {
		if unicode.IsLetter(r) {
			if startOfWord {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
			startOfWord = false
			continue
		}
		b.WriteRune(r)
		startOfWord = true
	}
	return b.String()
}
