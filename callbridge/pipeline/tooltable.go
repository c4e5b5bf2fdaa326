package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// toolTable is the on-disk shape of the registry table.
type toolTable struct {
	Tools []ToolEntry `yaml:"tools"`
}

// LoadEntries reads a registry table from a YAML file. An empty path
// returns DefaultEntries.
func LoadEntries(path string) ([]ToolEntry, error) {
	if path == "" {
		return DefaultEntries(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool table: %w", err)
	}
	var table toolTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse tool table %s: %w", path, err)
	}
	if len(table.Tools) == 0 {
		return nil, fmt.Errorf("%w: %s declares no tools", ErrInvalidDefinition, path)
	}
	return table.Tools, nil
}

func ptr(f float64) *float64 { return &f }

func userParam() ParamSpec {
	return ParamSpec{Name: "user_id", Type: TypeString, Required: true, Description: "customer number"}
}

// DefaultEntries is the built-in table of logical tool names bound to
// backend operations.
func DefaultEntries() []ToolEntry {
	return []ToolEntry{
		{
			Name: "get_current_bill", Category: "billing", Binding: "backend.getCurrentBill",
			Description: "Returns the bill of the current period.",
			Summary:     "Güncel faturanızı kontrol ettim.",
			Params:      []ParamSpec{userParam()},
		},
		{
			Name: "get_bill_history", Category: "billing", Binding: "backend.getBillHistory",
			Description: "Lists past bills, newest first.",
			Summary:     "Geçmiş faturalarınızı inceledim.",
			Params: []ParamSpec{
				userParam(),
				{Name: "limit", Type: TypeInteger, Default: 6, Minimum: ptr(1), Maximum: ptr(12), Description: "number of bills"},
			},
		},
		{
			Name: "pay_bill", Category: "billing", Binding: "backend.payBill",
			Description: "Pays a bill.",
			Summary:     "Fatura ödemenizi gerçekleştirdim.",
			Params: []ParamSpec{
				{Name: "bill_id", Type: TypeString, Required: true},
				{Name: "method", Type: TypeString, Required: true, Enum: []any{"credit_card", "bank_transfer"}},
			},
		},
		{
			Name: "get_payment_history", Category: "billing", Binding: "backend.getPaymentHistory",
			Description: "Lists recent payments.",
			Summary:     "Ödeme geçmişinizi inceledim.",
			Params:      []ParamSpec{userParam()},
		},
		{
			Name: "setup_autopay", Category: "billing", Binding: "backend.setupAutopay",
			Description: "Turns automatic payment on or off.",
			Summary:     "Otomatik ödeme ayarınızı güncelledim.",
			Params:      []ParamSpec{userParam(), {Name: "status", Type: TypeBoolean, Required: true}},
		},
		{
			Name: "get_customer_package", Category: "telecom", Binding: "backend.getCustomerPackage",
			Description: "Returns the active tariff.",
			Summary:     "Mevcut paketinizi kontrol ettim.",
			Params:      []ParamSpec{userParam()},
		},
		{
			Name: "get_remaining_quotas", Category: "telecom", Binding: "backend.getRemainingQuotas",
			Description: "Returns remaining data, minutes and SMS.",
			Summary:     "Kalan kullanım haklarınızı kontrol ettim.",
			Params:      []ParamSpec{userParam()},
		},
		{
			Name: "get_available_packages", Category: "telecom", Binding: "backend.getAvailablePackages",
			Description: "Lists every tariff on offer.",
			Summary:     "Mevcut paketleri listeledim.",
		},
		{
			Name: "get_package_details", Category: "telecom", Binding: "backend.getPackageDetails",
			Description: "Returns contract terms of a tariff.",
			Summary:     "Paket detaylarını inceledim.",
			Params:      []ParamSpec{{Name: "package_name", Type: TypeString, Required: true}},
		},
		{
			Name: "change_package", Category: "telecom", Binding: "backend.changePackage",
			Description: "Schedules a tariff change.",
			Summary:     "Paket değişikliğinizi planladım.",
			Params:      []ParamSpec{userParam(), {Name: "new_package_name", Type: TypeString, Required: true}},
		},
		{
			Name: "enable_roaming", Category: "telecom", Binding: "backend.enableRoaming",
			Description: "Turns roaming on or off.",
			Summary:     "Yurt dışı kullanım ayarınızı güncelledim.",
			Params:      []ParamSpec{userParam(), {Name: "status", Type: TypeBoolean, Required: true}},
		},
		{
			Name: "check_network_status", Category: "support", Binding: "backend.checkNetworkStatus",
			Description: "Reports coverage and outages of a region.",
			Summary:     "Bölgenizdeki şebeke durumunu kontrol ettim.",
			Params:      []ParamSpec{{Name: "region", Type: TypeString, Required: true}},
		},
		{
			Name: "create_fault_ticket", Category: "support", Binding: "backend.createFaultTicket",
			Description: "Opens a fault ticket.",
			Summary:     "Arıza kaydınızı oluşturdum.",
			Params:      []ParamSpec{userParam(), {Name: "issue_description", Type: TypeString, Required: true}},
		},
		{
			Name: "get_fault_ticket_status", Category: "support", Binding: "backend.getFaultTicketStatus",
			Description: "Returns the state of a fault ticket.",
			Summary:     "Arıza kaydınızın durumunu kontrol ettim.",
			Params:      []ParamSpec{{Name: "ticket_id", Type: TypeString, Required: true}},
		},
		{
			Name: "test_internet_speed", Category: "support", Binding: "backend.testInternetSpeed",
			Description: "Runs a line speed test.",
			Summary:     "İnternet hız testinizi yaptım.",
			Params:      []ParamSpec{userParam()},
		},
		{
			Name: "get_system_health", Category: "system", Binding: "backend.getSystemHealth",
			Description: "Reports backend health.",
			Summary:     "Sistem durumunu kontrol ettim.",
		},
	}
}
