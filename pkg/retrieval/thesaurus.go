package retrieval

// thesaurus maps lower-cased German administrative-law terms to
// synonyms and near-synonyms used for query expansion. Curated from
// common citizen-service vocabulary; keys are single terms as they
// appear in queries.
var thesaurus = map[string][]string{
	"abfall":             {"müll", "abfallentsorgung", "entsorgung"},
	"anmeldung":          {"registrierung", "ummeldung"},
	"antrag":             {"antragstellung", "gesuch", "antragsverfahren"},
	"arbeitslosengeld":   {"alg", "bürgergeld", "grundsicherung"},
	"ausweis":            {"personalausweis", "identitätsnachweis"},
	"bafög":              {"ausbildungsförderung", "studienförderung"},
	"bauantrag":          {"baugenehmigung", "bauantragsverfahren", "baugesuch"},
	"baugenehmigung":     {"bauantrag", "baubewilligung", "baurecht"},
	"bebauungsplan":      {"b-plan", "bauleitplan", "flächennutzungsplan"},
	"beglaubigung":       {"amtliche beglaubigung", "beurkundung"},
	"bescheid":           {"verwaltungsakt", "bewilligung"},
	"bußgeld":            {"geldbuße", "ordnungswidrigkeit", "verwarnungsgeld"},
	"einbürgerung":       {"staatsangehörigkeit", "einbürgerungsantrag"},
	"elterngeld":         {"elternzeit", "familienleistung"},
	"führerschein":       {"fahrerlaubnis", "führerscheinantrag"},
	"führungszeugnis":    {"polizeiliches führungszeugnis"},
	"gebühr":             {"verwaltungsgebühr", "kosten", "gebührenordnung"},
	"genehmigung":        {"erlaubnis", "bewilligung", "zulassung"},
	"gewerbe":            {"gewerbeanmeldung", "gewerbeschein", "gewerbebetrieb"},
	"grundsteuer":        {"grundsteuerbescheid", "grundsteuererklärung"},
	"heirat":             {"eheschließung", "standesamt", "trauung"},
	"hund":               {"hundesteuer", "hundeanmeldung", "leinenpflicht"},
	"kindergeld":         {"familienkasse", "kindergeldantrag"},
	"kita":               {"kindertagesstätte", "kinderbetreuung", "kita-gutschein"},
	"lärm":               {"lärmschutz", "ruhestörung", "immissionsschutz"},
	"meldebescheinigung": {"meldebestätigung", "wohnsitzbescheinigung"},
	"parkausweis":        {"bewohnerparkausweis", "anwohnerparken"},
	"pass":               {"reisepass", "passantrag"},
	"photovoltaik":       {"solaranlage", "pv-anlage", "solarstrom"},
	"reisepass":          {"pass", "passantrag", "expresspass"},
	"sondernutzung":      {"sondernutzungserlaubnis", "straßennutzung"},
	"sozialhilfe":        {"grundsicherung", "sozialleistung"},
	"umzug":              {"ummeldung", "wohnsitzwechsel", "anmeldung"},
	"widerspruch":        {"widerspruchsverfahren", "einspruch", "rechtsbehelf"},
	"wohngeld":           {"mietzuschuss", "wohngeldantrag", "lastenzuschuss"},
	"zulassung":          {"kfz-zulassung", "fahrzeugzulassung", "anmeldung"},
}

// synonymsFor returns the expansion terms for a lower-cased token, or
// nil when the thesaurus has no entry.
func synonymsFor(token string) []string {
	return thesaurus[token]
}
