package normalize

import "strings"

// Core canonical fields and the many source spellings that map to them.
// Lookup keys are folded: lowercased with spaces, underscores and hyphens
// removed, so "Sales Rank", "sales_rank" and "salesRank" all collide.
var coreAliases = map[string]string{
	"asin":       "asin",
	"productid":  "asin",
	"childasin":  "asin",
	"title":      "title",
	"name":       "title",
	"productname":  "title",
	"producttitle": "title",
	"itemname":     "title",
	"标题":         "title",
	"商品标题":     "title",
	"category":     "category",
	"categoryname": "category",
	"categorypath": "category",
	"node":         "category",
	"类目":         "category",
	"price":        "price",
	"sellingprice": "price",
	"itemprice":    "price",
	"currentprice": "price",
	"价格":         "price",
	"currency":     "currency",
	"currencycode": "currency",
	"货币":         "currency",
	"salesrank":  "sales_rank",
	"bsr":        "sales_rank",
	"rank":       "sales_rank",
	"bestsellersrank": "sales_rank",
	"排名":       "sales_rank",
	"reviews":     "reviews",
	"reviewcount": "reviews",
	"reviewscount": "reviews",
	"ratingscount": "reviews",
	"numreviews":   "reviews",
	"评论数":      "reviews",
	"rating":       "rating",
	"stars":        "rating",
	"starrating":   "rating",
	"averagerating": "rating",
	"评分":         "rating",
}

// Extended fields: non-core attributes preserved as first-class keys in
// extended_data.
var extendedAliases = map[string]string{
	"brand":       "brand",
	"brandname":   "brand",
	"品牌":        "brand",
	"image":       "image_url",
	"imageurl":    "image_url",
	"mainimage":   "image_url",
	"imgurl":      "image_url",
	"producturl":  "product_url",
	"url":         "product_url",
	"link":        "product_url",
	"detailurl":   "product_url",
	"launchdate":  "launch_date",
	"listingdate": "launch_date",
	"availablefrom": "launch_date",
	"上架时间":    "launch_date",
	"revenue":        "revenue",
	"monthlyrevenue": "revenue",
	"月收入":        "revenue",
	"sales":          "sales_volume",
	"salesvolume":    "sales_volume",
	"monthlysales":   "sales_volume",
	"unitssold":      "sales_volume",
	"月销量":        "sales_volume",
	"fbafee":  "fba_fee",
	"fbafees": "fba_fee",
	"fba":     "fba_fee",
	"fees":    "fba_fee",
	"lqs":            "lqs",
	"listingquality": "lqs",
	"variationcount": "variation_count",
	"variations":     "variation_count",
	"sellercount": "seller_count",
	"sellers":     "seller_count",
	"weight":      "weight",
	"重量":        "weight",
	"dimensions":  "dimensions",
	"size":        "dimensions",
	"bsrcategory": "bsr_category",
	"parentasin":  "parent_asin",
	"isamazon":    "is_amazon",
	"amazonsells": "is_amazon",
	"availability": "availability",
	"instock":      "availability",
	"stockstatus":  "availability",
}

// extendedPrefix is the stable prefix under which unmapped source keys are
// preserved inside extended_data.
const extendedPrefix = "x_"

// foldKey canonicalizes a source column name for alias lookup.
func foldKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range strings.ToLower(strings.TrimSpace(k)) {
		switch r {
		case ' ', '_', '-', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// resolve maps a raw key to (canonical name, isCore). Call-site aliases take
// precedence over the built-in tables and may target core or extended names.
func resolve(key string, extra map[string]string) (string, bool, bool) {
	folded := foldKey(key)

	if extra != nil {
		if target, ok := extra[key]; ok {
			return classifyTarget(target)
		}
		for src, target := range extra {
			if foldKey(src) == folded {
				return classifyTarget(target)
			}
		}
	}

	if canonical, ok := coreAliases[folded]; ok {
		return canonical, true, true
	}
	if canonical, ok := extendedAliases[folded]; ok {
		return canonical, false, true
	}
	return "", false, false
}

// classifyTarget decides whether an alias target names a core field.
func classifyTarget(target string) (string, bool, bool) {
	folded := foldKey(target)
	if canonical, ok := coreAliases[folded]; ok {
		return canonical, true, true
	}
	if canonical, ok := extendedAliases[folded]; ok {
		return canonical, false, true
	}
	// Alias to a name outside both tables still lands in extended_data under
	// the requested name.
	return target, false, true
}
