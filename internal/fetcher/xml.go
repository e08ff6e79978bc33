package fetcher

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	xpp "github.com/mmcdole/goxpp"
	"golang.org/x/net/html/charset"

	"catalog_sync/internal/model"
)

// errStop unwinds a walk after the consumer stopped iterating.
var errStop = errors.New("stop")

func newParser(body []byte) *xpp.XMLPullParser {
	return xpp.NewXMLPullParser(bytes.NewReader(body), false, charset.NewReaderLabel)
}

// ReadYML yields the offers of a Yandex Market Language catalog
// (yml_catalog/shop/{name,categories,offers}). Category ids are resolved through
// the category list, which precedes the offers in a well-formed catalog.
func ReadYML(body []byte) iter.Seq2[model.SupplierRow, error] {
	return func(yield func(model.SupplierRow, error) bool) {
		p := newParser(body)
		if err := expectRoot(p, "yml_catalog"); err != nil {
			finish(yield, err)
			return
		}

		var shop string
		categories := make(map[string]string)

		err := eachChild(p, func(name string) error {
			if name != "shop" {
				return skipElement(p)
			}
			return eachChild(p, func(name string) error {
				switch name {
				case "name":
					v, err := elementText(p)
					shop = v
					return err
				case "categories":
					return eachChild(p, func(name string) error {
						if name != "category" {
							return skipElement(p)
						}
						id := p.Attribute("id")
						v, err := elementText(p)
						if err != nil {
							return err
						}
						categories[id] = v
						return nil
					})
				case "offers":
					return eachChild(p, func(name string) error {
						if name != "offer" {
							return skipElement(p)
						}
						row, err := readYMLOffer(p)
						if err != nil {
							return err
						}
						row.Shop = shop
						row.Category = categories[row.Category]
						if !yield(row, nil) {
							return errStop
						}
						return nil
					})
				}
				return skipElement(p)
			})
		})
		finish(yield, err)
	}
}

// readYMLOffer reads one offer. Category holds the raw categoryId.
func readYMLOffer(p *xpp.XMLPullParser) (model.SupplierRow, error) {
	row := model.SupplierRow{SupplierID: p.Attribute("id")}
	err := eachChild(p, func(name string) error {
		var err error
		switch name {
		case "name":
			row.Name, err = elementText(p)
		case "price":
			row.Price, err = elementText(p)
		case "categoryid":
			row.Category, err = elementText(p)
		case "picture":
			var v string
			v, err = elementText(p)
			if row.Picture == "" {
				row.Picture = v
			}
		case "param":
			param := p.Attribute("name")
			var v string
			v, err = elementText(p)
			assignNutrient(&row, param, v)
		default:
			err = skipElement(p)
		}
		return err
	})
	return row, err
}

// ReadGoods yields the offers of a goods_data export
// (goods_data/{categories,offers}) with nutrition under product_info.
func ReadGoods(body []byte) iter.Seq2[model.SupplierRow, error] {
	return func(yield func(model.SupplierRow, error) bool) {
		p := newParser(body)
		if err := expectRoot(p, "goods_data"); err != nil {
			finish(yield, err)
			return
		}

		categories := make(map[string]string)

		err := eachChild(p, func(name string) error {
			switch name {
			case "categories":
				return eachChild(p, func(name string) error {
					if name != "category" {
						return skipElement(p)
					}
					id, title, err := readGoodsCategory(p)
					if err != nil {
						return err
					}
					categories[id] = title
					return nil
				})
			case "offers":
				return eachChild(p, func(name string) error {
					if name != "offer" {
						return skipElement(p)
					}
					row, err := readGoodsOffer(p)
					if err != nil {
						return err
					}
					row.Category = categories[row.Category]
					if !yield(row, nil) {
						return errStop
					}
					return nil
				})
			}
			return skipElement(p)
		})
		finish(yield, err)
	}
}

func readGoodsCategory(p *xpp.XMLPullParser) (id, name string, err error) {
	id = p.Attribute("id")
	err = eachChild(p, func(child string) error {
		var err error
		switch child {
		case "id":
			id, err = elementText(p)
		case "name":
			name, err = elementText(p)
		default:
			err = skipElement(p)
		}
		return err
	})
	return id, name, err
}

// readGoodsOffer reads one offer. Category holds the raw category_id.
func readGoodsOffer(p *xpp.XMLPullParser) (model.SupplierRow, error) {
	row := model.SupplierRow{SupplierID: p.Attribute("id")}
	err := eachChild(p, func(name string) error {
		var err error
		switch name {
		case "id":
			row.SupplierID, err = elementText(p)
		case "name":
			row.Name, err = elementText(p)
		case "category_id":
			row.Category, err = elementText(p)
		case "price":
			row.Price, err = elementText(p)
		case "images":
			err = eachChild(p, func(string) error {
				return eachChild(p, func(name string) error {
					if name != "image_url" {
						return skipElement(p)
					}
					v, err := elementText(p)
					if row.Picture == "" {
						row.Picture = v
					}
					return err
				})
			})
		case "product_info":
			err = eachChild(p, func(name string) error {
				v, err := elementText(p)
				assignNutrient(&row, name, v)
				return err
			})
		default:
			err = skipElement(p)
		}
		return err
	})
	return row, err
}

// assignNutrient stores value in the macro field that label names. Labels are either
// goods_data element names or free-text YML param names.
func assignNutrient(row *model.SupplierRow, label, value string) {
	l := strings.ToLower(label)
	switch {
	case l == "proteins" || strings.Contains(l, "бел"):
		row.Proteins = value
	case l == "fats" || strings.Contains(l, "жир"):
		row.Fats = value
	case l == "carbohydrates" || strings.Contains(l, "углев"):
		row.Carbohydrates = value
	case l == "calories" || strings.Contains(l, "калор") || strings.Contains(l, "ккал") || strings.Contains(l, "энерг"):
		row.Calories = value
	}
}

func expectRoot(p *xpp.XMLPullParser, name string) error {
	ev, err := p.NextTag()
	if err != nil {
		return err
	}
	if ev != xpp.StartTag || !strings.EqualFold(p.Name, name) {
		return fmt.Errorf("root element %q, want %q", p.Name, name)
	}
	return nil
}

// eachChild calls fn for every child element of the element the parser is on.
// fn must consume the child up to and including its end tag.
func eachChild(p *xpp.XMLPullParser, fn func(name string) error) error {
	for {
		ev, err := p.Next()
		if err != nil {
			return err
		}
		switch ev {
		case xpp.StartTag:
			if err := fn(strings.ToLower(p.Name)); err != nil {
				return err
			}
		case xpp.EndTag:
			return nil
		case xpp.EndDocument:
			return io.ErrUnexpectedEOF
		}
	}
}

func skipElement(p *xpp.XMLPullParser) error {
	return eachChild(p, func(string) error {
		return skipElement(p)
	})
}

func elementText(p *xpp.XMLPullParser) (string, error) {
	s, err := p.NextText()
	return strings.TrimSpace(s), err
}

func finish(yield func(model.SupplierRow, error) bool, err error) {
	if err == nil || errors.Is(err, errStop) {
		return
	}
	yield(model.SupplierRow{}, fmt.Errorf("%w: %v", ErrMalformedFeed, err))
}
