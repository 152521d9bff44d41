package tagcache

// Tag registry. Code that fills an entry and code that invalidates it after a
// mutation must use the same constant.
const (
	TagWarehouses = "ref:warehouses"
	TagProducts   = "ref:products"
	TagTaxes      = "ref:taxes"
	TagStockData  = "heavy:stock-data"
	TagDocuments  = "heavy:documents"
)

// Registry lists every tag above. Pass it as Options.KnownTags to reject typos.
func Registry() []string {
	return []string{TagWarehouses, TagProducts, TagTaxes, TagStockData, TagDocuments}
}
