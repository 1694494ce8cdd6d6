package docstore

// DefaultSchema lists the stock fields of every doctype this system touches.
// The in-memory store seeds from it directly; the Postgres store seeds its
// doctype_fields table from it on migration. Custom fields added at runtime
// (brand scoping) land on top of these.
func DefaultSchema() map[string][]FieldDef {
	data := func(names ...string) []FieldDef {
		defs := make([]FieldDef, len(names))
		for i, n := range names {
			defs[i] = FieldDef{Fieldname: n, Fieldtype: "Data"}
		}
		return defs
	}

	schema := map[string][]FieldDef{
		DoctypeCompany: data("company_name", "abbr", "default_currency", "default_letter_head", "country"),
		DoctypeBrand:   data("brand", "description"),
		DoctypeWorkspace: data(
			"title", "label", "module", "public", "icon", "content",
			"onboarding_list", "sequence_id", "parent_page", "for_user",
			"links", "shortcuts", "charts", "number_cards", "quick_lists",
			"custom_blocks", "roles",
		),
		DoctypeTaxTemplate: data("title", "company", "is_default", "disabled", "taxes"),
		"Role":             data("role_name", "desk_access", "disabled"),
		DoctypeRoleProfile: data("role_profile", "roles"),
		"User": data(
			"email", "first_name", "full_name", "language", "time_zone",
			"enabled", "send_welcome_email", "user_type", "role_profile_name",
			"default_workspace", "roles",
		),
		DoctypeUserPerm:  data("user", "allow", "for_value", "apply_to_all_doctypes"),
		DoctypeLetterHead: data("letter_head_name", "source", "content", "image", "is_default", "disabled", "company", "brand"),
		"Provision Log":   data("log_id", "site", "blueprint", "dry_run", "summary", "plan", "status", "commit_ref"),
		"Module Def":      data("module_name", "app_name"),
		"Custom Field":    data("dt", "fieldname", "label", "fieldtype", "options", "insert_after", "in_list_view"),
		"Custom DocPerm": data(
			"parent", "parenttype", "parentfield", "role", "permlevel",
			"read", "write", "create", "delete", "submit", "cancel", "amend",
			"report", "export", "import", "share", "print", "email",
		),
		"Property Setter": data("doc_type", "field_name", "doctype_or_field", "property", "property_type", "value"),
		"DocShare":        data("share_doctype", "share_name", "user", "read", "write", "submit", "share"),
		"File":            data("file_url", "file_name", "is_private", "is_folder", "attached_to_doctype", "attached_to_name"),
		DoctypeProject:    data("project_name", "company", "status", "users"),
		DoctypeTask:       data("subject", "project", "company", "status"),
		DoctypeTodo:       data("reference_type", "reference_name", "allocated_to", "description", "status"),
		"Project User":    data("parent", "parenttype", "user", "permission"),
		"Warehouse Type":  data("warehouse_type_name"),
		// Singleton remembering the blueprint chosen at install time.
		"Onboarding Settings": data("blueprint"),
	}

	// CRM / Sales / HR doctypes carry a company field by default; brand is a
	// custom field added during provisioning when policy asks for it.
	for _, dt := range []string{
		"Lead", "Opportunity", "Customer", "Quotation", "Sales Order",
		"Employee", "Job Applicant", "Job Opening", "Timesheet",
	} {
		schema[dt] = data("company", "status")
	}
	schema["Employee"] = append(schema["Employee"], FieldDef{Fieldname: "user_id", Fieldtype: "Link", Options: "User"})

	return schema
}
