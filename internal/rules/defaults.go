package rules

// Default returns the built-in rule table. It reflects the vendors and
// banking vocabulary seen most often in Dutch transaction exports; loaded
// tables replace or extend it section by section.
func Default() *Table {
	t := &Table{
		Aliases: []Alias{
			{Match: "ALBERT HEIJN", Canonical: "ALBERTHEIJN"},
			{Match: "ALBERTHEIJN", Canonical: "ALBERTHEIJN"},
			{Match: "AH TO GO", Canonical: "ALBERTHEIJN"},
			{Match: "PICNIC", Canonical: "PICNIC"},
			{Match: "JUMBO", Canonical: "JUMBO"},
			{Match: "LIDL", Canonical: "LIDL"},
			{Match: "ALDI", Canonical: "ALDI"},
			{Match: "BOL.COM", Canonical: "BOL"},
			{Match: "COOLBLUE", Canonical: "COOLBLUE"},
			{Match: "THUISBEZORGD", Canonical: "THUISBEZORGD"},
			{Match: "ZIGGO", Canonical: "ZIGGO"},
			{Match: "VODAFONE", Canonical: "VODAFONE"},
			{Match: "T-MOBILE", Canonical: "TMOBILE"},
			{Match: "KPN", Canonical: "KPN"},
			{Match: "ENECO", Canonical: "ENECO"},
			{Match: "ESSENT", Canonical: "ESSENT"},
			{Match: "VATTENFALL", Canonical: "VATTENFALL"},
			{Match: "GREENCHOICE", Canonical: "GREENCHOICE"},
			{Match: "SPOTIFY", Canonical: "SPOTIFY"},
			{Match: "NETFLIX", Canonical: "NETFLIX"},
			{Match: "MICROSOFT", Canonical: "MICROSOFT"},
			{Match: "GOOGLE", Canonical: "GOOGLE"},
			{Match: "AMAZON", Canonical: "AMAZON"},
			{Match: "SHELL", Canonical: "SHELL"},
			{Match: "TANKSTATION", Canonical: "TANKSTATION"},
			{Match: "NS GROEP", Canonical: "NS"},
			{Match: "NS REIZIGERS", Canonical: "NS"},
			{Match: "BELASTINGDIENST", Canonical: "BELASTINGDIENST"},
			{Match: "GEMEENTE", Canonical: "GEMEENTE"},
			{Match: "BOEKHOUDGEMAK", Canonical: "BOEKHOUDGEMAK"},
		},
		NoiseWords: []string{
			// SEPA / bank plumbing
			"SEPA", "IDEAL", "INCASSO", "OVERBOEKING", "PERIODIEKE",
			"ACCEPTGIRO", "BETALING", "BETAALVERZOEK", "TRANSACTIE",
			"OMSCHRIJVING", "KENMERK", "MACHTIGING", "MANDAAT",
			"DOORLOPEND", "EENMALIG", "VERZAMELBETALING", "SALARIS",
			// invoice vocabulary (labels, not merchants)
			"FACTUUR", "FACTUURNR", "FACTUURNUMMER", "INVOICE", "REF",
			"REFERENTIE", "NOTA", "DECLARATIE", "ORDER", "ORDERNR",
			// generic payment words
			"PAYMENT", "PAYPAL", "CARD", "PASVOLGNR", "PINNEN", "GEA",
			"BEA", "ONLINE", "BANKIEREN", "KOSTEN", "RENTE",
			// connectives
			"THE", "AND", "VAN", "DER", "DEN", "HET", "EEN", "VOOR",
			"DOOR", "MET", "NAAR", "VIA", "INZAKE", "DATUM", "PER",
		},
		LegalSuffixes: []string{
			"BV", "B.V", "NV", "N.V", "VOF", "V.O.F", "CV", "C.V",
			"BVBA", "LTD", "LLC", "GMBH", "INC", "CORP", "SARL", "EV",
		},
		TokenPrefixes: []string{
			"EREF", "MARF", "CSID", "TRTP", "REMI", "IBAN", "BIC",
			"SVWZ", "EV2", "NOTPROVIDED",
		},
		NumericIDPrefixes: []string{
			"000", "0100", "020", "292",
		},
	}
	t.compile()
	return t
}
