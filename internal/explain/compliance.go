package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/durinhq/durin/internal/logging"
)

// ComplianceAnswer is one answer in a country-compliance conversation.
type ComplianceAnswer struct {
	Country string `json:"country"`
	Answer  string `json:"answer"`
	Source  Source `json:"source"`
}

// ComplianceChat answers a question about a country's AML/KYC regime. When
// the LLM path is unavailable the answer comes from a small curated corpus.
func (s *Service) ComplianceChat(ctx context.Context, country, question string, history []Message) (*ComplianceAnswer, error) {
	if s.llm != nil {
		system := fmt.Sprintf(`You are an expert in international AML/KYC compliance regulations and financial crime prevention.

You specialize in explaining country-specific compliance requirements, regulatory frameworks, and fraud risks for: %s

Guidelines:
- Provide accurate, up-to-date information about %s's AML/KYC regulations
- Mention relevant regulatory bodies (e.g., FinCEN, FCA, MAS)
- Cite specific laws when applicable (e.g., Bank Secrecy Act, EU AML Directives)
- Keep responses concise (under 150 words)
- Use professional, factual tone
- If you don't know specific details, provide general guidance`, country, country)

		messages := make([]Message, 0, len(history)+2)
		messages = append(messages, Message{Role: "system", Content: system})
		messages = append(messages, history...)
		messages = append(messages, Message{Role: "user", Content: question})

		answer, err := s.llm.Complete(ctx, messages, 300, 0.5)
		if err == nil {
			return &ComplianceAnswer{Country: country, Answer: answer, Source: SourceLLM}, nil
		}
		logging.L(ctx).Warn("compliance chat llm failed, using fallback", "error", err)
	}

	return &ComplianceAnswer{
		Country: country,
		Answer:  complianceFallback(country, question),
		Source:  SourceFallback,
	}, nil
}

// Curated answers for the markets most uploads come from. Everything else
// gets generic guidance.
var complianceCorpus = map[string]map[string]string{
	"United States": {
		"kyc": "US KYC regulations are enforced by FinCEN under the Bank Secrecy Act (BSA). Requirements include Customer Identification Program (CIP), Customer Due Diligence (CDD), and Enhanced Due Diligence (EDD) for high-risk customers. Beneficial ownership rules require identifying individuals owning 25%+ of entities.",
		"aml": "US AML compliance is governed by FinCEN and enforced through the Bank Secrecy Act (BSA) and USA PATRIOT Act. Requirements include: AML program, SAR filing for suspicious activities, CTR filing for transactions over $10,000, and OFAC sanctions screening.",
		"default": "US financial compliance is overseen by FinCEN, OCC, and FDIC. Key regulations include the Bank Secrecy Act (BSA), USA PATRIOT Act, and OFAC sanctions. Financial institutions must implement comprehensive AML/KYC programs, file SARs and CTRs, and screen against sanctions lists.",
	},
	"Canada": {
		"kyc": "Canada's KYC regulations are governed by FINTRAC (Financial Transactions and Reports Analysis Centre). Key requirements include: customer identification, beneficial ownership verification, ongoing monitoring, and suspicious transaction reporting. Financial institutions must verify identity using government-issued ID and maintain records for 5 years.",
		"aml": "Canada's AML framework is overseen by FINTRAC under the Proceeds of Crime (Money Laundering) and Terrorist Financing Act (PCMLTFA). Requirements include: risk-based approach, customer due diligence, transaction monitoring, and reporting suspicious activities (STRs) and large cash transactions (LCTRs) over $10,000 CAD.",
		"default": "Canada's financial compliance is regulated by FINTRAC. Key areas include KYC (Know Your Customer), AML (Anti-Money Laundering), and CTF (Counter-Terrorist Financing). Financial institutions must implement risk-based programs, verify customer identity, monitor transactions, and report suspicious activities.",
	},
	"United Kingdom": {
		"kyc": "UK KYC requirements fall under the Money Laundering Regulations 2017, supervised by the FCA. Firms must perform customer due diligence, verify identity against reliable sources, identify beneficial owners, and apply enhanced due diligence to high-risk relationships and politically exposed persons.",
		"aml": "UK AML compliance is supervised by the FCA under the Money Laundering Regulations 2017 and the Proceeds of Crime Act 2002. Firms must run risk assessments, monitor transactions, and file Suspicious Activity Reports (SARs) with the National Crime Agency.",
		"default": "UK financial compliance is supervised by the FCA under the Money Laundering Regulations 2017. Key obligations include customer due diligence, transaction monitoring, SAR filing with the National Crime Agency, and sanctions screening against the OFSI consolidated list.",
	},
}

func complianceFallback(country, question string) string {
	countryResponses, ok := complianceCorpus[country]
	if !ok {
		return fmt.Sprintf("%s's financial compliance typically includes KYC (customer identification), AML (transaction monitoring), and regulatory reporting requirements. Specific regulations vary by jurisdiction. Consult local regulatory authorities for detailed requirements.", country)
	}

	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "kyc") || strings.Contains(q, "know your customer") || strings.Contains(q, "identification"):
		return countryResponses["kyc"]
	case strings.Contains(q, "aml") || strings.Contains(q, "laundering"):
		return countryResponses["aml"]
	default:
		return countryResponses["default"]
	}
}
