package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"finstack-backend/internal/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Record is a formatted seed entry ready to be embedded.
type Record struct {
	ID           string
	DocType      models.DocType
	Content      string
	Confidential bool
	AccessLevel  string
	Metadata     map[string]any
}

type Employee struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Title             string   `json:"title"`
	Department        string   `json:"department"`
	Team              string   `json:"team"`
	Location          string   `json:"location"`
	Email             string   `json:"email"`
	Phone             string   `json:"phone"`
	Salary            float64  `json:"salary"`
	ManagerEmail      string   `json:"manager_email"`
	EquityAnnual      float64  `json:"equity_annual"`
	PerformanceRating any      `json:"performance_rating"`
	StartDate         string   `json:"start_date"`
	Skills            []string `json:"skills"`
	CurrentProject    string   `json:"current_project"`
}

type Contact struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Customer struct {
	ID             string   `json:"id"`
	CompanyName    string   `json:"company_name"`
	Tier           string   `json:"tier"`
	Industry       string   `json:"industry"`
	ARR            float64  `json:"arr"`
	EmployeeCount  any      `json:"employee_count"`
	PrimaryContact Contact  `json:"primary_contact"`
	PaymentMethod  string   `json:"payment_method"`
	ContractStart  string   `json:"contract_start"`
	ContractEnd    string   `json:"contract_end"`
	SupportTier    string   `json:"support_tier"`
	CSM            string   `json:"csm"`
	ActiveUsers    int      `json:"active_users"`
	Integrations   []string `json:"integrations"`
	RecentNotes    string   `json:"recent_notes"`
}

// Financial record types.
const (
	RecordQuarterlyBudget = "quarterly_budget"
	RecordFunding         = "funding"
	RecordRevenueForecast = "revenue_forecast"
)

type FinancialRecord struct {
	ID         string `json:"id"`
	RecordType string `json:"record_type"`
	Notes      string `json:"notes"`

	// quarterly_budget
	Department      string             `json:"department"`
	FiscalQuarter   string             `json:"fiscal_quarter"`
	BudgetAllocated float64            `json:"budget_allocated"`
	ActualSpend     float64            `json:"actual_spend"`
	Utilization     float64            `json:"utilization"`
	Headcount       *int               `json:"headcount"`
	Breakdown       map[string]float64 `json:"breakdown"`

	// funding
	FundingRound       string  `json:"funding_round"`
	Amount             float64 `json:"amount"`
	Date               string  `json:"date"`
	LeadInvestor       string  `json:"lead_investor"`
	PostMoneyValuation float64 `json:"post_money_valuation"`

	// revenue_forecast
	FiscalYear   any     `json:"fiscal_year"`
	TotalYear    float64 `json:"total_year"`
	YoYGrowth    float64 `json:"yoy_growth"`
	ARRTargetEOY float64 `json:"arr_target_eoy"`
}

type Project struct {
	ID           string   `json:"id"`
	ProjectName  string   `json:"project_name"`
	Status       string   `json:"status"`
	Team         string   `json:"team"`
	Lead         string   `json:"lead"`
	Objective    string   `json:"objective"`
	TechStack    []string `json:"tech_stack"`
	TargetLaunch string   `json:"target_launch"`
	Budget       float64  `json:"budget"`
	TeamSize     int      `json:"team_size"`
	Risks        any      `json:"risks"` // a sentence or a list of them
}

type KnowledgeArticle struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Department  string `json:"department"`
	Content     string `json:"content"`
	LastUpdated string `json:"last_updated"`
	AccessLevel string `json:"access_level"`
}

// Categories whose articles are confidential regardless of access level.
var confidentialCategories = []string{"security_incident", "technical"}

var printer = message.NewPrinter(language.English)

// money formats an amount with thousands separators, e.g. $1,250,000.
func money(v float64) string {
	if v == math.Trunc(v) {
		return "$" + printer.Sprintf("%d", int64(v))
	}
	return "$" + printer.Sprintf("%.2f", v)
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return number(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, text(p))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

func FormatEmployee(e Employee) string {
	parts := []string{
		fmt.Sprintf("%s is a %s in the %s department", e.Name, e.Title, e.Department),
		"Team: " + orNA(e.Team),
		"Based in " + e.Location,
		fmt.Sprintf("Email: %s, Phone: %s", e.Email, e.Phone),
		"Salary: " + money(e.Salary),
	}
	if e.ManagerEmail != "" {
		parts = append(parts, "Reports to: "+e.ManagerEmail)
	}
	if e.EquityAnnual != 0 {
		parts = append(parts, "Annual equity: "+money(e.EquityAnnual))
	}
	parts = append(parts,
		"Performance rating: "+text(e.PerformanceRating),
		"Started: "+e.StartDate,
	)
	if len(e.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(e.Skills, ", "))
	}
	if e.CurrentProject != "" {
		parts = append(parts, "Current project: "+e.CurrentProject)
	}
	return strings.Join(parts, ". ")
}

func FormatCustomer(c Customer) string {
	contact := c.PrimaryContact
	parts := []string{
		fmt.Sprintf("%s is a %s customer in the %s industry", c.CompanyName, c.Tier, c.Industry),
		"Annual contract value: " + money(c.ARR),
		fmt.Sprintf("Company size: %s employees", text(c.EmployeeCount)),
		fmt.Sprintf("Primary contact: %s (%s)", orNA(contact.Name), orNA(contact.Title)),
		fmt.Sprintf("Contact email: %s, Phone: %s", orNA(contact.Email), orNA(contact.Phone)),
		"Payment method: " + orNA(c.PaymentMethod),
		fmt.Sprintf("Contract: %s to %s", c.ContractStart, c.ContractEnd),
		"Support tier: " + c.SupportTier,
		"Customer Success Manager: " + orNA(c.CSM),
		fmt.Sprintf("Active users: %d", c.ActiveUsers),
	}
	if len(c.Integrations) > 0 {
		parts = append(parts, "Integrations: "+strings.Join(c.Integrations, ", "))
	}
	if c.RecentNotes != "" {
		parts = append(parts, "Notes: "+c.RecentNotes)
	}
	return strings.Join(parts, ". ")
}

func FormatFinancial(f FinancialRecord) string {
	parts := []string{"Financial Record: " + f.RecordType}

	switch f.RecordType {
	case RecordQuarterlyBudget:
		headcount := "N/A"
		if f.Headcount != nil {
			headcount = strconv.Itoa(*f.Headcount)
		}
		parts = append(parts,
			"Department: "+f.Department,
			"Quarter: "+f.FiscalQuarter,
			"Budget allocated: "+money(f.BudgetAllocated),
			"Actual spend: "+money(f.ActualSpend),
			"Utilization: "+number(f.Utilization)+"%",
			"Headcount: "+headcount,
		)
		if len(f.Breakdown) > 0 {
			items := make([]string, 0, len(f.Breakdown))
			for _, k := range slices.Sorted(maps.Keys(f.Breakdown)) {
				items = append(items, fmt.Sprintf("%s: %s", k, money(f.Breakdown[k])))
			}
			parts = append(parts, "Breakdown: "+strings.Join(items, ", "))
		}
	case RecordFunding:
		parts = append(parts,
			"Funding round: "+f.FundingRound,
			"Amount: "+money(f.Amount),
			"Date: "+f.Date,
			"Lead investor: "+f.LeadInvestor,
			"Post-money valuation: "+money(f.PostMoneyValuation),
		)
	case RecordRevenueForecast:
		parts = append(parts,
			"Fiscal year: "+text(f.FiscalYear),
			"Total forecast: "+money(f.TotalYear),
			"YoY growth: "+number(f.YoYGrowth)+"%",
			"ARR target end of year: "+money(f.ARRTargetEOY),
		)
	}

	if f.Notes != "" {
		parts = append(parts, "Notes: "+f.Notes)
	}
	return strings.Join(parts, ". ")
}

func FormatProject(p Project) string {
	parts := []string{
		"Project: " + p.ProjectName,
		"Status: " + p.Status,
		"Team: " + p.Team,
		"Project lead: " + p.Lead,
		"Objective: " + p.Objective,
	}
	if len(p.TechStack) > 0 {
		parts = append(parts, "Technology stack: "+strings.Join(p.TechStack, ", "))
	}
	if p.TargetLaunch != "" {
		parts = append(parts, "Target launch: "+p.TargetLaunch)
	}
	if p.Budget != 0 {
		parts = append(parts, "Budget: "+money(p.Budget))
	}
	if p.TeamSize != 0 {
		parts = append(parts, fmt.Sprintf("Team size: %d people", p.TeamSize))
	}
	if risks := text(p.Risks); risks != "" {
		parts = append(parts, "Risks: "+risks)
	}
	return strings.Join(parts, ". ")
}

func FormatKnowledgeArticle(k KnowledgeArticle) string {
	parts := []string{
		"Topic: " + k.Title,
		"Category: " + k.Category,
		"Department: " + k.Department,
		k.Content,
	}
	if k.LastUpdated != "" {
		parts = append(parts, "Last updated: "+k.LastUpdated)
	}
	return strings.Join(parts, ". ")
}

// --- Records ---

func EmployeeRecord(e Employee) Record {
	return Record{
		ID:           e.ID,
		DocType:      models.DocTypeEmployee,
		Content:      FormatEmployee(e),
		Confidential: true,
		AccessLevel:  models.AccessHRManagersOnly,
		Metadata: map[string]any{
			"name":       e.Name,
			"email":      e.Email,
			"department": e.Department,
			"title":      e.Title,
			"salary":     e.Salary,
			"location":   e.Location,
		},
	}
}

func CustomerRecord(c Customer) Record {
	return Record{
		ID:           c.ID,
		DocType:      models.DocTypeCustomer,
		Content:      FormatCustomer(c),
		Confidential: true,
		AccessLevel:  models.AccessSalesCSOnly,
		Metadata: map[string]any{
			"company_name": c.CompanyName,
			"industry":     c.Industry,
			"tier":         c.Tier,
			"arr":          c.ARR,
			"support_tier": c.SupportTier,
			"pii_included": true,
		},
	}
}

func FinancialRecordToRecord(f FinancialRecord) Record {
	return Record{
		ID:           f.ID,
		DocType:      models.DocTypeFinancial,
		Content:      FormatFinancial(f),
		Confidential: true,
		AccessLevel:  models.AccessFinanceExecOnly,
		Metadata:     map[string]any{"record_type": f.RecordType},
	}
}

func ProjectRecord(p Project) Record {
	return Record{
		ID:          p.ID,
		DocType:     models.DocTypeProject,
		Content:     FormatProject(p),
		AccessLevel: models.AccessAllEmployees,
		Metadata: map[string]any{
			"project_name": p.ProjectName,
			"status":       p.Status,
			"team":         p.Team,
		},
	}
}

func KnowledgeArticleRecord(k KnowledgeArticle) Record {
	access := k.AccessLevel
	if access == "" {
		access = models.AccessAllEmployees
	}
	return Record{
		ID:           k.ID,
		DocType:      models.DocTypeKnowledge,
		Content:      FormatKnowledgeArticle(k),
		Confidential: slices.Contains(confidentialCategories, k.Category),
		AccessLevel:  access,
		Metadata: map[string]any{
			"title":      k.Title,
			"category":   k.Category,
			"department": k.Department,
		},
	}
}

// --- Loading ---

// Seed file names inside a data directory.
const (
	EmployeesFile        = "employees.json"
	CustomersFile        = "customers.json"
	FinancialRecordsFile = "financial_records.json"
	ProjectsFile         = "projects.json"
	CompanyKnowledgeFile = "company_knowledge.json"
)

// LoadSeedDir reads the seed JSON files in dir and formats every entry.
// Missing files are skipped with a warning; malformed files are an error.
func LoadSeedDir(dir string) ([]Record, error) {
	var records []Record

	steps := []struct {
		file string
		load func(path string) ([]Record, error)
	}{
		{EmployeesFile, func(p string) ([]Record, error) { return loadRecords(p, EmployeeRecord) }},
		{CustomersFile, func(p string) ([]Record, error) { return loadRecords(p, CustomerRecord) }},
		{FinancialRecordsFile, func(p string) ([]Record, error) { return loadRecords(p, FinancialRecordToRecord) }},
		{ProjectsFile, func(p string) ([]Record, error) { return loadRecords(p, ProjectRecord) }},
		{CompanyKnowledgeFile, func(p string) ([]Record, error) { return loadRecords(p, KnowledgeArticleRecord) }},
	}

	for _, step := range steps {
		path := filepath.Join(dir, step.file)
		loaded, err := step.load(path)
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("WARN [Seed] LoadSeedDir: %s not found, skipping", path)
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Printf("[Seed] LoadSeedDir: formatted %d records from %s", len(loaded), step.file)
		records = append(records, loaded...)
	}
	return records, nil
}

func loadRecords[T any](path string, toRecord func(T) Record) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	records := make([]Record, 0, len(items))
	for _, item := range items {
		records = append(records, toRecord(item))
	}
	return records, nil
}
