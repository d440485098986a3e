package domain

type LinkType string

func (t LinkType) String() string {
	return string(t)
}

const (
	LinkTypeDepartment  LinkType = "department"
	LinkTypeCategory    LinkType = "category"
	LinkTypeSubcategory LinkType = "subcategory"
	LinkTypeProduct     LinkType = "product"
	LinkTypePagination  LinkType = "pagination"
	LinkTypeNavigation  LinkType = "navigation"
	LinkTypeOther       LinkType = "other"
)

// LinkTypes lists every link type in the order categorized links are flattened.
var LinkTypes = []LinkType{
	LinkTypeDepartment,
	LinkTypeCategory,
	LinkTypeSubcategory,
	LinkTypeProduct,
	LinkTypePagination,
	LinkTypeNavigation,
	LinkTypeOther,
}

// IsCategoryLike reports whether pages of this type are handled as taxonomy pages.
func (t LinkType) IsCategoryLike() bool {
	switch t {
	case LinkTypeDepartment, LinkTypeCategory, LinkTypeSubcategory:
		return true
	default:
		return false
	}
}

const (
	SpecialTaxonomyExplore = "taxonomy_explore"
	SpecialProduceTaxonomy = "produce_taxonomy"
)
