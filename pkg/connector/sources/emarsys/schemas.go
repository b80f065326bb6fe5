package emarsys

import (
	"github.com/ajitpratap0/emarsys-tap/pkg/catalog"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/core"
)

// KeyProperties lists the primary key of each stream
var KeyProperties = map[string][]string{
	core.StreamContacts:               {"id"},
	core.StreamContactLists:           {"id"},
	core.StreamContactListMemberships: {"contact_list_id", "contact_id"},
	core.StreamCampaigns:              {"id"},
	core.StreamMetrics:                {"campaign_id", "date", "metric", "contact_id"},
}

func nullable(typ string) *catalog.Schema {
	return &catalog.Schema{Type: catalog.Nullable(typ)}
}

func dateTime() *catalog.Schema {
	return &catalog.Schema{Type: catalog.Nullable("string"), Format: "date-time"}
}

func objectSchema(props map[string]*catalog.Schema) *catalog.Schema {
	return &catalog.Schema{
		Type:                 catalog.Nullable("object"),
		Properties:           props,
		AdditionalProperties: catalog.AllowAdditional,
	}
}

// staticSchemas returns the schemas that do not depend on the account
func staticSchemas() map[string]*catalog.Schema {
	return map[string]*catalog.Schema{
		core.StreamCampaigns: objectSchema(map[string]*catalog.Schema{
			"id":                 nullable("integer"),
			"name":               nullable("string"),
			"status":             nullable("integer"),
			"created":            dateTime(),
			"deleted":            dateTime(),
			"language":           nullable("string"),
			"subject":            nullable("string"),
			"fromemail":          nullable("string"),
			"fromname":           nullable("string"),
			"email_category":     nullable("integer"),
			"filter":             nullable("integer"),
			"contactlist":        nullable("integer"),
			"administrator":      nullable("integer"),
			"root_campaign_id":   nullable("integer"),
			"parent_campaign_id": nullable("integer"),
			"source":             nullable("string"),
			"content_type":       nullable("string"),
		}),
		core.StreamContactLists: objectSchema(map[string]*catalog.Schema{
			"id":      nullable("integer"),
			"name":    nullable("string"),
			"created": dateTime(),
			"type":    nullable("integer"),
		}),
		core.StreamContactListMemberships: objectSchema(map[string]*catalog.Schema{
			"contact_list_id": nullable("integer"),
			"contact_id":      nullable("integer"),
		}),
		core.StreamMetrics: objectSchema(map[string]*catalog.Schema{
			"campaign_id": nullable("string"),
			"date":        &catalog.Schema{Type: catalog.Nullable("string"), Format: "date"},
			"metric":      nullable("string"),
			"contact_id":  nullable("string"),
		}),
	}
}

// contactsSchema builds the contacts schema from the account's fields
func contactsSchema(fields *FieldCatalog) *catalog.Schema {
	props := map[string]*catalog.Schema{
		"id":  nullable("integer"),
		"uid": nullable("string"),
	}
	for _, fd := range fields.Fields() {
		if contactKeys[fd.Name] || fd.Name == "" {
			continue
		}
		if fd.Type == FieldTypeDate {
			props[fd.Name] = dateTime()
		} else {
			props[fd.Name] = nullable("string")
		}
	}
	return objectSchema(props)
}
